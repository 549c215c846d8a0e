package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/elgen19/dearly-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeStore struct {
	byToken map[string]*models.LetterToken
	nextID  uint

	// renewDenied simulates losing the conditional-update race
	renewDenied bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byToken: map[string]*models.LetterToken{}}
}

func (f *fakeStore) Create(ctx context.Context, t *models.LetterToken) error {
	f.nextID++
	t.ID = f.nextID
	f.byToken[t.Token] = t
	return nil
}

func (f *fakeStore) GetByToken(ctx context.Context, token string) (*models.LetterToken, error) {
	rec, ok := f.byToken[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) Renew(ctx context.Context, id uint, prevRenewalCount int, newExpiry time.Time) (bool, error) {
	if f.renewDenied {
		return false, nil
	}
	for _, rec := range f.byToken {
		if rec.ID == id && rec.RenewalCount == prevRenewalCount && rec.IsActive {
			rec.ExpiresAt = newExpiry
			rec.RenewalCount++
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) DeactivateForLetter(ctx context.Context, letterID uint) error {
	for _, rec := range f.byToken {
		if rec.LetterID == letterID {
			rec.IsActive = false
		}
	}
	return nil
}

func newTestService(store *fakeStore, now time.Time) *Service {
	svc := NewService(store)
	svc.now = func() time.Time { return now }
	return svc
}

// --- tests ---

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.Len(t, a, 64, "expected 32 bytes hex-encoded")
	assert.NotEqual(t, a, b)
}

func TestIssueAndValidate(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.True(t, issued.IsActive)
	assert.Equal(t, now.Add(models.TokenValidity), issued.ExpiresAt)

	got, err := svc.Validate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), got.LetterID)
	assert.Equal(t, 0, got.RenewalCount, "fresh token must not renew")
}

func TestValidateUnknownToken(t *testing.T) {
	svc := newTestService(newFakeStore(), time.Now())

	_, err := svc.Validate(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateRevokedToken(t *testing.T) {
	store := newFakeStore()
	now := time.Now()
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)
	require.NoError(t, svc.RevokeForLetter(context.Background(), 42))

	_, err = svc.Validate(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrRevoked)
}

func TestValidateExpiredToken(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)

	// Jump past expiry
	svc.now = func() time.Time { return issued.ExpiresAt.Add(time.Hour) }

	_, err = svc.Validate(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestValidateAutoRenewsNearExpiry(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)

	// 10 days before expiry: inside the 30-day renewal window
	presented := issued.ExpiresAt.Add(-10 * 24 * time.Hour)
	svc.now = func() time.Time { return presented }

	got, err := svc.Validate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RenewalCount)
	assert.Equal(t, presented.Add(models.TokenValidity), got.ExpiresAt)

	// Store reflects the renewal too
	stored := store.byToken[issued.Token]
	assert.Equal(t, 1, stored.RenewalCount)
}

func TestValidateDoesNotRenewOutsideWindow(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)

	// 45 days before expiry: outside the renewal window
	svc.now = func() time.Time { return issued.ExpiresAt.Add(-45 * 24 * time.Hour) }

	got, err := svc.Validate(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RenewalCount)
	assert.Equal(t, issued.ExpiresAt, got.ExpiresAt)
}

func TestValidateStopsRenewingAtCap(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)
	store.byToken[issued.Token].RenewalCount = models.TokenMaxRenewals

	presented := issued.ExpiresAt.Add(-time.Hour)
	svc.now = func() time.Time { return presented }

	got, err := svc.Validate(context.Background(), issued.Token)
	require.NoError(t, err, "capped token is still usable until expiry")
	assert.Equal(t, models.TokenMaxRenewals, got.RenewalCount)
	assert.Equal(t, issued.ExpiresAt, got.ExpiresAt)
}

func TestValidateLostRenewalRace(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(store, now)

	issued, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)

	store.renewDenied = true
	svc.now = func() time.Time { return issued.ExpiresAt.Add(-time.Hour) }

	got, err := svc.Validate(context.Background(), issued.Token)
	require.NoError(t, err, "losing the renewal race must not fail validation")
	assert.Equal(t, 0, got.RenewalCount)
}

func TestRegenerateRevokesPrevious(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, time.Now())

	first, err := svc.Issue(context.Background(), 1, 42)
	require.NoError(t, err)

	second, err := svc.Regenerate(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, second.Token)

	_, err = svc.Validate(context.Background(), first.Token)
	assert.ErrorIs(t, err, ErrRevoked)

	_, err = svc.Validate(context.Background(), second.Token)
	assert.NoError(t, err)
}

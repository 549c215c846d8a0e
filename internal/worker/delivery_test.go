package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeEmailStore struct {
	rows map[uint]*models.ScheduledEmail

	// claimedElsewhere simulates another tick winning claims
	claimedElsewhere bool
}

func newFakeEmailStore(rows ...*models.ScheduledEmail) *fakeEmailStore {
	s := &fakeEmailStore{rows: map[uint]*models.ScheduledEmail{}}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (f *fakeEmailStore) DueEmails(ctx context.Context, now time.Time) ([]models.ScheduledEmail, error) {
	var due []models.ScheduledEmail
	for _, r := range f.rows {
		if r.Status == models.ScheduledEmailStatusPending && !r.ScheduledAt.After(now.Add(DueBuffer)) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (f *fakeEmailStore) Claim(ctx context.Context, id uint) (bool, error) {
	if f.claimedElsewhere {
		return false, nil
	}
	r, ok := f.rows[id]
	if !ok || r.Status != models.ScheduledEmailStatusPending {
		return false, nil
	}
	r.Status = models.ScheduledEmailStatusSending
	r.Attempts++
	return true, nil
}

func (f *fakeEmailStore) Delete(ctx context.Context, id uint) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeEmailStore) MarkFailed(ctx context.Context, id uint, sendErr string) error {
	r, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("row %d not found", id)
	}
	r.Status = models.ScheduledEmailStatusFailed
	r.LastError = sendErr
	return nil
}

type fakeSender struct {
	sent    []mailer.Message
	failFor map[string]error
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	if err, ok := f.failFor[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestDeliverer(store ScheduledEmailStore, sender mailer.Provider) *Deliverer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDeliverer(store, sender, logger, 0)
	d.sleep = func(time.Duration) {}
	return d
}

func pendingEmail(id uint, to string, scheduledAt time.Time) *models.ScheduledEmail {
	e := &models.ScheduledEmail{
		RecipientEmail: to,
		Subject:        "hello",
		BodyHTML:       "<p>hi</p>",
		ScheduledAt:    scheduledAt,
		Status:         models.ScheduledEmailStatusPending,
	}
	e.ID = id
	return e
}

// --- tests ---

func TestProcessDueSendsAndDeletes(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeEmailStore(
		pendingEmail(1, "amy@example.com", now.Add(-time.Minute)),
		pendingEmail(2, "ben@example.com", now.Add(-2*time.Hour)),
	)
	sender := &fakeSender{}

	d := newTestDeliverer(store, sender)
	d.now = func() time.Time { return now }

	sent, failed, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 0, failed)
	assert.Len(t, sender.sent, 2)
	assert.Empty(t, store.rows, "sent rows must be deleted")
}

func TestProcessDueSkipsFutureEmails(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeEmailStore(
		pendingEmail(1, "amy@example.com", now.Add(time.Hour)),
	)
	sender := &fakeSender{}

	d := newTestDeliverer(store, sender)
	d.now = func() time.Time { return now }

	sent, failed, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
	assert.Len(t, store.rows, 1, "future email stays pending")
}

func TestProcessDueDueBuffer(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	// Due 20s from now: inside the 30s buffer, so this tick takes it
	store := newFakeEmailStore(pendingEmail(1, "amy@example.com", now.Add(20*time.Second)))
	sender := &fakeSender{}

	d := newTestDeliverer(store, sender)
	d.now = func() time.Time { return now }

	sent, _, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestProcessDueMarksFailed(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeEmailStore(pendingEmail(1, "amy@example.com", now.Add(-time.Minute)))
	sender := &fakeSender{failFor: map[string]error{
		"amy@example.com": fmt.Errorf("smtp send: connection refused"),
	}}

	d := newTestDeliverer(store, sender)
	d.now = func() time.Time { return now }

	sent, failed, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, failed)

	row := store.rows[1]
	require.NotNil(t, row, "failed rows are kept for manual resend")
	assert.Equal(t, models.ScheduledEmailStatusFailed, row.Status)
	assert.Contains(t, row.LastError, "connection refused")
	assert.Equal(t, 1, row.Attempts)
}

func TestProcessDueSkipsRowsClaimedElsewhere(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeEmailStore(pendingEmail(1, "amy@example.com", now.Add(-time.Minute)))
	store.claimedElsewhere = true
	sender := &fakeSender{}

	d := newTestDeliverer(store, sender)
	d.now = func() time.Time { return now }

	sent, failed, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
	assert.Empty(t, sender.sent, "claimed rows must not be re-sent")
}

func TestProcessDueAppliesSendDelay(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newFakeEmailStore(
		pendingEmail(1, "amy@example.com", now.Add(-time.Minute)),
		pendingEmail(2, "ben@example.com", now.Add(-time.Minute)),
		pendingEmail(3, "cal@example.com", now.Add(-time.Minute)),
	)
	sender := &fakeSender{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDeliverer(store, sender, logger, 250*time.Millisecond)
	d.now = func() time.Time { return now }

	var slept []time.Duration
	d.sleep = func(dur time.Duration) { slept = append(slept, dur) }

	sent, _, err := d.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	// No delay before the first send, one between each subsequent pair
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept)
}

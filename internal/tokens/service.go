// Package tokens implements the letter access token lifecycle: opaque
// 256-bit hex tokens granting bearer access to a single letter, with
// expiry, bounded auto-renewal and revocation.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/elgen19/dearly-server/internal/models"
)

// Validation errors. Handlers map ErrNotFound to 404 and the other two to 410.
var (
	ErrNotFound = errors.New("token not found")
	ErrRevoked  = errors.New("token revoked")
	ErrExpired  = errors.New("token expired")
)

// Store is the persistence interface for letter tokens
type Store interface {
	Create(ctx context.Context, t *models.LetterToken) error
	GetByToken(ctx context.Context, token string) (*models.LetterToken, error)
	// Renew conditionally extends a token keyed on its current renewal
	// count. Returns false when a concurrent validation renewed first.
	Renew(ctx context.Context, id uint, prevRenewalCount int, newExpiry time.Time) (bool, error)
	DeactivateForLetter(ctx context.Context, letterID uint) error
}

// Service implements token issue, validation with auto-renewal, and revocation
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a token service backed by the given store
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Generate returns a fresh opaque token: 32 random bytes, hex-encoded
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Issue creates and persists a new active token for a letter
func (s *Service) Issue(ctx context.Context, userID, letterID uint) (*models.LetterToken, error) {
	token, err := Generate()
	if err != nil {
		return nil, err
	}

	rec := &models.LetterToken{
		Token:     token,
		UserID:    userID,
		LetterID:  letterID,
		ExpiresAt: s.now().Add(models.TokenValidity),
		IsActive:  true,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	return rec, nil
}

// Regenerate deactivates all tokens for a letter and issues a fresh one
func (s *Service) Regenerate(ctx context.Context, userID, letterID uint) (*models.LetterToken, error) {
	if err := s.store.DeactivateForLetter(ctx, letterID); err != nil {
		return nil, fmt.Errorf("failed to deactivate previous tokens: %w", err)
	}
	return s.Issue(ctx, userID, letterID)
}

// RevokeForLetter deactivates every token issued for a letter
func (s *Service) RevokeForLetter(ctx context.Context, letterID uint) error {
	return s.store.DeactivateForLetter(ctx, letterID)
}

// Validate checks a presented token and auto-renews it when it is within
// the renewal window of its expiry and has renewals left. Renewal is a
// conditional update keyed on the current renewal count, so two concurrent
// validations of the same token extend it exactly once.
func (s *Service) Validate(ctx context.Context, token string) (*models.LetterToken, error) {
	rec, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, ErrRevoked
	}

	now := s.now()
	if now.After(rec.ExpiresAt) {
		return nil, ErrExpired
	}

	if rec.ExpiresAt.Sub(now) <= models.TokenRenewalWindow && rec.RenewalCount < models.TokenMaxRenewals {
		newExpiry := now.Add(models.TokenValidity)
		renewed, err := s.store.Renew(ctx, rec.ID, rec.RenewalCount, newExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to renew token: %w", err)
		}
		if renewed {
			rec.ExpiresAt = newExpiry
			rec.RenewalCount++
		}
		// Lost the renewal race: another request already extended this
		// token, so the record we hold is still valid as-is.
	}

	return rec, nil
}

package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"gorm.io/gorm"
)

// DueBuffer widens the due check so an email scheduled just after a tick
// fires is caught by that tick instead of waiting a full minute.
const DueBuffer = 30 * time.Second

// ScheduledEmailStore is the persistence interface for the delivery loop
type ScheduledEmailStore interface {
	// DueEmails returns pending rows with scheduledAt <= now + DueBuffer,
	// oldest first.
	DueEmails(ctx context.Context, now time.Time) ([]models.ScheduledEmail, error)
	// Claim atomically moves a row pending -> sending and bumps its
	// attempt counter. Returns false when another tick claimed it first.
	Claim(ctx context.Context, id uint) (bool, error)
	// Delete removes a row after a successful send.
	Delete(ctx context.Context, id uint) error
	// MarkFailed records a failed send for a later manual resend.
	MarkFailed(ctx context.Context, id uint, sendErr string) error
}

// Deliverer drains due scheduled emails: claim, send, delete-or-fail.
// Sends are sequential with a fixed delay between them to stay inside
// provider rate limits.
type Deliverer struct {
	store     ScheduledEmailStore
	sender    mailer.Provider
	logger    *slog.Logger
	sendDelay time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

// NewDeliverer creates a delivery loop over the given store and provider
func NewDeliverer(store ScheduledEmailStore, sender mailer.Provider, logger *slog.Logger, sendDelay time.Duration) *Deliverer {
	return &Deliverer{
		store:     store,
		sender:    sender,
		logger:    logger,
		sendDelay: sendDelay,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// ProcessDue runs one delivery pass and reports how many emails were sent
// and how many failed. Rows claimed by a concurrent pass are skipped
// silently; the claim is what guarantees at-most-one sender per row.
func (d *Deliverer) ProcessDue(ctx context.Context) (sent, failed int, err error) {
	due, err := d.store.DueEmails(ctx, d.now())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query due emails: %w", err)
	}

	for i, email := range due {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}

		claimed, err := d.store.Claim(ctx, email.ID)
		if err != nil {
			d.logger.Error("Failed to claim scheduled email", "id", email.ID, "error", err.Error())
			failed++
			continue
		}
		if !claimed {
			// Another tick owns this row
			continue
		}

		if i > 0 && d.sendDelay > 0 {
			d.sleep(d.sendDelay)
		}

		msg := mailer.Message{To: email.RecipientEmail, Subject: email.Subject, HTML: email.BodyHTML}
		if sendErr := d.sender.Send(ctx, msg); sendErr != nil {
			d.logger.Error(
				"Scheduled email send failed",
				"id", email.ID,
				"to", email.RecipientEmail,
				"attempts", email.Attempts+1,
				"error", sendErr.Error(),
			)
			if err := d.store.MarkFailed(ctx, email.ID, sendErr.Error()); err != nil {
				d.logger.Error("Failed to mark scheduled email failed", "id", email.ID, "error", err.Error())
			}
			failed++
			continue
		}

		if err := d.store.Delete(ctx, email.ID); err != nil {
			// The email went out; a leftover "sending" row is visible in
			// the scheduled list rather than silently re-sent.
			d.logger.Error("Failed to delete sent scheduled email", "id", email.ID, "error", err.Error())
		}
		sent++
	}

	if sent > 0 || failed > 0 {
		d.logger.Info("Scheduled email pass complete", "sent", sent, "failed", failed)
	}
	return sent, failed, nil
}

// GormScheduledEmailStore persists scheduled emails in Postgres via GORM
type GormScheduledEmailStore struct {
	db *gorm.DB
}

// NewGormScheduledEmailStore creates a GORM-backed store
func NewGormScheduledEmailStore(db *gorm.DB) *GormScheduledEmailStore {
	return &GormScheduledEmailStore{db: db}
}

func (g *GormScheduledEmailStore) DueEmails(ctx context.Context, now time.Time) ([]models.ScheduledEmail, error) {
	var due []models.ScheduledEmail
	err := g.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.ScheduledEmailStatusPending, now.Add(DueBuffer)).
		Order("scheduled_at ASC").
		Find(&due).Error
	return due, err
}

func (g *GormScheduledEmailStore) Claim(ctx context.Context, id uint) (bool, error) {
	result := g.db.WithContext(ctx).
		Model(&models.ScheduledEmail{}).
		Where("id = ? AND status = ?", id, models.ScheduledEmailStatusPending).
		Updates(map[string]interface{}{
			"status":   models.ScheduledEmailStatusSending,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (g *GormScheduledEmailStore) Delete(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Unscoped().Delete(&models.ScheduledEmail{}, id).Error
}

func (g *GormScheduledEmailStore) MarkFailed(ctx context.Context, id uint, sendErr string) error {
	return g.db.WithContext(ctx).
		Model(&models.ScheduledEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.ScheduledEmailStatusFailed,
			"last_error": sendErr,
		}).Error
}

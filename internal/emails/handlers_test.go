package emails

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type memEmailStore struct {
	rows map[uint]*models.ScheduledEmail
}

func (m *memEmailStore) DueEmails(ctx context.Context, now time.Time) ([]models.ScheduledEmail, error) {
	var due []models.ScheduledEmail
	for _, r := range m.rows {
		if r.Status == models.ScheduledEmailStatusPending && !r.ScheduledAt.After(now.Add(worker.DueBuffer)) {
			due = append(due, *r)
		}
	}
	return due, nil
}

func (m *memEmailStore) Claim(ctx context.Context, id uint) (bool, error) {
	r, ok := m.rows[id]
	if !ok || r.Status != models.ScheduledEmailStatusPending {
		return false, nil
	}
	r.Status = models.ScheduledEmailStatusSending
	r.Attempts++
	return true, nil
}

func (m *memEmailStore) Delete(ctx context.Context, id uint) error {
	delete(m.rows, id)
	return nil
}

func (m *memEmailStore) MarkFailed(ctx context.Context, id uint, sendErr string) error {
	if r, ok := m.rows[id]; ok {
		r.Status = models.ScheduledEmailStatusFailed
		r.LastError = sendErr
	}
	return nil
}

type recordingSender struct {
	sent []mailer.Message
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Send(ctx context.Context, msg mailer.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func newCronRouter(secret string, store *memEmailStore, sender *recordingSender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deliverer := worker.NewDeliverer(store, sender, logger, 0)
	h := NewHandlers(nil, deliverer, &config.Config{CronSecret: secret}, logger, nil)

	r := gin.New()
	r.GET("/api/cron/scheduled-emails", h.CronTrigger)
	return r
}

// --- tests ---

func TestCronTriggerRejectsBadSecret(t *testing.T) {
	r := newCronRouter("s3cret", &memEmailStore{rows: map[uint]*models.ScheduledEmail{}}, &recordingSender{})

	req := httptest.NewRequest(http.MethodGet, "/api/cron/scheduled-emails", nil)
	req.Header.Set("X-Cron-Secret", "wrong")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCronTriggerUnconfigured(t *testing.T) {
	r := newCronRouter("", &memEmailStore{rows: map[uint]*models.ScheduledEmail{}}, &recordingSender{})

	req := httptest.NewRequest(http.MethodGet, "/api/cron/scheduled-emails", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCronTriggerDeliversDueEmails(t *testing.T) {
	due := &models.ScheduledEmail{
		RecipientEmail: "amy@example.com",
		Subject:        "A letter for you",
		BodyHTML:       "<p>hi</p>",
		ScheduledAt:    time.Now().Add(-time.Minute),
		Status:         models.ScheduledEmailStatusPending,
	}
	due.ID = 1
	store := &memEmailStore{rows: map[uint]*models.ScheduledEmail{1: due}}
	sender := &recordingSender{}
	r := newCronRouter("s3cret", store, sender)

	req := httptest.NewRequest(http.MethodGet, "/api/cron/scheduled-emails", nil)
	req.Header.Set("X-Cron-Secret", "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, float64(0), body["failed"])

	assert.Len(t, sender.sent, 1)
	assert.Equal(t, "amy@example.com", sender.sent[0].To)
	assert.Empty(t, store.rows, "delivered rows are removed")
}

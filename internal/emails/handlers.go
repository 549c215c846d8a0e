// Package emails exposes direct sending, scheduled email management and
// the header-authenticated cron trigger.
package emails

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elgen19/dearly-server/internal/auth"
	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/worker"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers bundles the email routes' dependencies
type Handlers struct {
	db           *gorm.DB
	deliverer    *worker.Deliverer
	cfg          *config.Config
	logger       *slog.Logger
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the email routes
func NewHandlers(db *gorm.DB, deliverer *worker.Deliverer, cfg *config.Config, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{db: db, deliverer: deliverer, cfg: cfg, logger: logger, enqueueEmail: enqueueEmail}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send queues an immediate send through the worker
func (h *Handlers) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.To == "" || req.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and subject are required"})
		return
	}

	if err := h.enqueueEmail(mailer.Message{To: req.To, Subject: req.Subject, HTML: req.HTML}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue email"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

type scheduleRequest struct {
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	HTML        string    `json:"html"`
	LetterID    uint      `json:"letterId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Schedule persists a deferred send for the per-minute delivery tick
func (h *Handlers) Schedule(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.To == "" || req.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and subject are required"})
		return
	}
	if req.ScheduledAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduledAt must be in the future"})
		return
	}

	scheduled := models.ScheduledEmail{
		UserID:         uid,
		LetterID:       req.LetterID,
		RecipientEmail: req.To,
		Subject:        req.Subject,
		BodyHTML:       req.HTML,
		ScheduledAt:    req.ScheduledAt.UTC(),
		Status:         models.ScheduledEmailStatusPending,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&scheduled).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule email"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"scheduled": scheduledView(&scheduled)})
}

// ListScheduled returns the user's scheduled emails
func (h *Handlers) ListScheduled(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var rows []models.ScheduledEmail
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", uid).
		Order("scheduled_at ASC").
		Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scheduled emails"})
		return
	}

	views := make([]gin.H, 0, len(rows))
	for i := range rows {
		views = append(views, scheduledView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": views})
}

// CancelScheduled removes a still-pending scheduled email. Rows already
// claimed by a tick cannot be cancelled.
func (h *Handlers) CancelScheduled(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ? AND status = ?", id, uid, models.ScheduledEmailStatusPending).
		Delete(&models.ScheduledEmail{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel scheduled email"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "email is not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// ResendFailed puts a failed scheduled email back in the pending queue
// for the next tick.
func (h *Handlers) ResendFailed(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.ScheduledEmail{}).
		Where("id = ? AND user_id = ? AND status = ?", id, uid, models.ScheduledEmailStatusFailed).
		Updates(map[string]interface{}{
			"status":       models.ScheduledEmailStatusPending,
			"scheduled_at": time.Now().UTC(),
			"last_error":   "",
		})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to requeue email"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "email is not in a failed state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "requeued"})
}

// CronTrigger runs one delivery pass on behalf of an external cron (e.g.
// a platform scheduler hitting this endpoint once per minute). It backs
// the same logic as the in-process scheduler tick.
func (h *Handlers) CronTrigger(c *gin.Context) {
	if h.cfg.CronSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "cron trigger is not configured"})
		return
	}
	if c.GetHeader("X-Cron-Secret") != h.cfg.CronSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid cron secret"})
		return
	}

	sent, failed, err := h.deliverer.ProcessDue(c.Request.Context())
	if err != nil {
		h.logger.Error("Cron delivery pass failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delivery pass failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": sent, "failed": failed})
}

func scheduledView(e *models.ScheduledEmail) gin.H {
	return gin.H{
		"id":          e.ID,
		"to":          e.RecipientEmail,
		"subject":     e.Subject,
		"letterId":    e.LetterID,
		"scheduledAt": e.ScheduledAt,
		"status":      e.Status,
		"attempts":    e.Attempts,
		"lastError":   e.LastError,
	}
}

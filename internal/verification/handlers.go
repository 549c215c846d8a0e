// Package verification implements the email address confirmation flow:
// single-use expiring tokens delivered by email.
package verification

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/tokens"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	// TokenTTL is how long a verification link stays valid
	TokenTTL = 24 * time.Hour
	// ResendCooldown throttles repeated verification requests per address
	ResendCooldown = time.Minute
)

// Handlers bundles the verification routes' dependencies
type Handlers struct {
	db           *gorm.DB
	cfg          *config.Config
	logger       *slog.Logger
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the verification routes
func NewHandlers(db *gorm.DB, cfg *config.Config, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{db: db, cfg: cfg, logger: logger, enqueueEmail: enqueueEmail}
}

type sendRequest struct {
	Email string `json:"email"`
}

// Send issues a verification token and mails the confirmation link.
// Requests inside the cooldown window are rejected with 429.
func (h *Handlers) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "a valid email is required"})
		return
	}

	ctx := c.Request.Context()

	// Cooldown: look at the latest token issued for this address
	var latest models.EmailVerificationToken
	err := h.db.WithContext(ctx).
		Where("email = ?", email).
		Order("created_at DESC").
		First(&latest).Error
	if err == nil && time.Since(latest.CreatedAt) < ResendCooldown {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "please wait before requesting another verification email"})
		return
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue verification token"})
		return
	}

	token, err := tokens.Generate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue verification token"})
		return
	}

	rec := models.EmailVerificationToken{
		Email:     email,
		Token:     token,
		ExpiresAt: time.Now().Add(TokenTTL),
	}
	if err := h.db.WithContext(ctx).Create(&rec).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue verification token"})
		return
	}

	msg := mailer.VerificationEmail(email, h.cfg.BaseURL, token)
	if err := h.enqueueEmail(msg); err != nil {
		h.logger.Error("Failed to enqueue verification email", "email", email, "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send verification email"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type confirmRequest struct {
	Token string `json:"token"`
}

// Confirm consumes a verification token. The conditional update makes
// each token single-use; expired tokens return 410.
func (h *Handlers) Confirm(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	ctx := c.Request.Context()

	var rec models.EmailVerificationToken
	if err := h.db.WithContext(ctx).Where("token = ?", req.Token).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown verification token"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm token"})
		}
		return
	}
	if rec.Used {
		c.JSON(http.StatusGone, gin.H{"error": "verification token was already used"})
		return
	}
	if time.Now().After(rec.ExpiresAt) {
		c.JSON(http.StatusGone, gin.H{"error": "verification token has expired"})
		return
	}

	now := time.Now()
	result := h.db.WithContext(ctx).
		Model(&models.EmailVerificationToken{}).
		Where("id = ? AND used = false", rec.ID).
		Updates(map[string]interface{}{"used": true, "used_at": now})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm token"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusGone, gin.H{"error": "verification token was already used"})
		return
	}

	if err := h.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", rec.Email).
		Update("email_verified", true).Error; err != nil {
		h.logger.Error("Failed to flag user verified", "email", rec.Email, "error", err.Error())
	}

	c.JSON(http.StatusOK, gin.H{"status": "verified", "email": rec.Email})
}

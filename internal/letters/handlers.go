// Package letters implements letter CRUD, tokenized share access, the
// security-answer gate and read receipts.
package letters

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elgen19/dearly-server/internal/auth"
	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/events"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/notifications"
	"github.com/elgen19/dearly-server/internal/security"
	"github.com/elgen19/dearly-server/internal/tokens"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ObjectDeleter removes uploaded attachment objects. Satisfied by
// *storage.Client; nil when object storage is not configured.
type ObjectDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Handlers bundles the letter routes' dependencies
type Handlers struct {
	db          *gorm.DB
	tokens      *tokens.Service
	notify      *notifications.Service
	events      *events.Publisher // nil when Redis Streams is not configured
	attachments ObjectDeleter     // nil when object storage is not configured
	cfg         *config.Config
	logger      *slog.Logger

	// enqueueEmail defers outbound mail to the worker queue
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the letter routes
func NewHandlers(db *gorm.DB, tokenSvc *tokens.Service, notify *notifications.Service, publisher *events.Publisher, attachments ObjectDeleter, cfg *config.Config, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{
		db:           db,
		tokens:       tokenSvc,
		notify:       notify,
		events:       publisher,
		attachments:  attachments,
		cfg:          cfg,
		logger:       logger,
		enqueueEmail: enqueueEmail,
	}
}

type securityRequest struct {
	Type     string `json:"type"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type musicRequest struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
	Key    string `json:"key"`
}

type createRequest struct {
	Title         string           `json:"title"`
	Content       json.RawMessage  `json:"content"`
	ReceiverEmail string           `json:"receiverEmail"`
	ReceiverName  string           `json:"receiverName"`
	Security      *securityRequest `json:"security"`
	Music         *musicRequest    `json:"music"`
	VoiceKey      string           `json:"voiceKey"`

	// Delivery: omit both for a link-only letter
	SendNow    bool       `json:"sendNow"`
	ScheduleAt *time.Time `json:"scheduleAt"`
}

// Create creates a letter, issues its share token and optionally delivers
// or schedules the share email.
func (h *Handlers) Create(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ReceiverEmail == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiverEmail is required"})
		return
	}
	if err := ValidateContent(req.Content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Security != nil {
		if req.Security.Type != models.SecurityTypeQuiz && req.Security.Type != models.SecurityTypeDate {
			c.JSON(http.StatusBadRequest, gin.H{"error": "security type must be quiz or date"})
			return
		}
		if req.Security.Answer == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "security answer is required"})
			return
		}
	}
	if req.ScheduleAt != nil && req.ScheduleAt.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scheduleAt must be in the future"})
		return
	}

	letter := models.Letter{
		UserID:        uid,
		Title:         req.Title,
		Content:       datatypes.JSON(req.Content),
		ReceiverEmail: req.ReceiverEmail,
		ReceiverName:  req.ReceiverName,
		Status:        models.LetterStatusUnread,
		VoiceKey:      req.VoiceKey,
	}
	if req.Security != nil {
		letter.SecurityType = req.Security.Type
		letter.SecurityQuestion = req.Security.Question
		letter.SecurityAnswerHash = security.HashAnswer(req.Security.Answer)
	}
	if req.Music != nil {
		letter.MusicTitle = req.Music.Title
		letter.MusicArtist = req.Music.Artist
		letter.MusicURL = req.Music.URL
		letter.MusicKey = req.Music.Key
	}

	if err := h.db.WithContext(c.Request.Context()).Create(&letter).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create letter"})
		return
	}

	token, err := h.tokens.Issue(c.Request.Context(), uid, letter.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue share token"})
		return
	}

	if err := h.deliverShareEmail(c, uid, &letter, token.Token, req.SendNow, req.ScheduleAt); err != nil {
		// Letter and token exist; delivery can be retried from the UI
		h.logger.Error("Share email delivery setup failed", "letter_id", letter.ID, "error", err.Error())
	}

	c.JSON(http.StatusCreated, gin.H{
		"letter":     h.letterView(&letter, true),
		"shareToken": token.Token,
		"expiresAt":  token.ExpiresAt,
	})
}

func (h *Handlers) deliverShareEmail(c *gin.Context, uid uint, letter *models.Letter, token string, sendNow bool, scheduleAt *time.Time) error {
	if !sendNow && scheduleAt == nil {
		return nil
	}

	var sender models.User
	if err := h.db.First(&sender, uid).Error; err != nil {
		return err
	}
	senderName := sender.FirstName
	if senderName == "" {
		senderName = sender.Email
	}
	msg := mailer.LetterShareEmail(letter.ReceiverEmail, letter.ReceiverName, senderName, h.cfg.BaseURL, token)

	if sendNow {
		return h.enqueueEmail(msg)
	}

	scheduled := models.ScheduledEmail{
		UserID:         uid,
		LetterID:       letter.ID,
		RecipientEmail: msg.To,
		Subject:        msg.Subject,
		BodyHTML:       msg.HTML,
		ScheduledAt:    scheduleAt.UTC(),
		Status:         models.ScheduledEmailStatusPending,
	}
	return h.db.WithContext(c.Request.Context()).Create(&scheduled).Error
}

// List returns the user's letters, newest first
func (h *Handlers) List(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var letters []models.Letter
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", uid).
		Order("created_at DESC").
		Find(&letters).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list letters"})
		return
	}

	views := make([]gin.H, 0, len(letters))
	for i := range letters {
		views = append(views, h.letterView(&letters[i], true))
	}
	c.JSON(http.StatusOK, gin.H{"letters": views})
}

// Get returns one of the user's letters by ID
func (h *Handlers) Get(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	letter, ok := h.ownedLetter(c, uid)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"letter": h.letterView(letter, true)})
}

type updateRequest struct {
	Title         *string          `json:"title"`
	Content       json.RawMessage  `json:"content"`
	ReceiverEmail *string          `json:"receiverEmail"`
	ReceiverName  *string          `json:"receiverName"`
	Security      *securityRequest `json:"security"`
	Music         *musicRequest    `json:"music"`
	VoiceKey      *string          `json:"voiceKey"`
}

// Update modifies an unread letter. Read letters are immutable: the
// receiver already saw them.
func (h *Handlers) Update(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	letter, ok := h.ownedLetter(c, uid)
	if !ok {
		return
	}
	if letter.Status == models.LetterStatusRead {
		c.JSON(http.StatusConflict, gin.H{"error": "letter has already been read"})
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if len(req.Content) > 0 {
		if err := ValidateContent(req.Content); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates["content"] = datatypes.JSON(req.Content)
	}
	if req.ReceiverEmail != nil {
		updates["receiver_email"] = *req.ReceiverEmail
	}
	if req.ReceiverName != nil {
		updates["receiver_name"] = *req.ReceiverName
	}
	if req.VoiceKey != nil {
		updates["voice_key"] = *req.VoiceKey
	}
	if req.Security != nil {
		if req.Security.Type == "" {
			// Clear the gate
			updates["security_type"] = ""
			updates["security_question"] = ""
			updates["security_answer_hash"] = ""
		} else {
			if req.Security.Type != models.SecurityTypeQuiz && req.Security.Type != models.SecurityTypeDate {
				c.JSON(http.StatusBadRequest, gin.H{"error": "security type must be quiz or date"})
				return
			}
			updates["security_type"] = req.Security.Type
			updates["security_question"] = req.Security.Question
			if req.Security.Answer != "" {
				updates["security_answer_hash"] = security.HashAnswer(req.Security.Answer)
			}
		}
	}
	if req.Music != nil {
		updates["music_title"] = req.Music.Title
		updates["music_artist"] = req.Music.Artist
		updates["music_url"] = req.Music.URL
		updates["music_key"] = req.Music.Key
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(c.Request.Context()).Model(letter).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update letter"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"letter": h.letterView(letter, true)})
}

// Delete removes a letter and revokes its tokens
func (h *Handlers) Delete(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	letter, ok := h.ownedLetter(c, uid)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.tokens.RevokeForLetter(ctx, letter.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke tokens"})
		return
	}
	if err := h.db.WithContext(ctx).Delete(letter).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete letter"})
		return
	}
	h.deleteAttachments(ctx, letter)

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// deleteAttachments removes the letter's uploaded objects. Failures are
// logged; the row deletion has already committed.
func (h *Handlers) deleteAttachments(ctx context.Context, letter *models.Letter) {
	if h.attachments == nil {
		return
	}
	for _, key := range []string{letter.MusicKey, letter.VoiceKey} {
		if key == "" {
			continue
		}
		if err := h.attachments.Delete(ctx, key); err != nil {
			h.logger.Error("Failed to delete attachment object", "letter_id", letter.ID, "key", key, "error", err.Error())
		}
	}
}

// RegenerateToken revokes existing tokens and issues a fresh share token
func (h *Handlers) RegenerateToken(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	letter, ok := h.ownedLetter(c, uid)
	if !ok {
		return
	}

	token, err := h.tokens.Regenerate(c.Request.Context(), uid, letter.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to regenerate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"shareToken": token.Token,
		"expiresAt":  token.ExpiresAt,
	})
}

// Shared resolves a share token to its letter. Letters with a security
// gate stay locked (no content) until the answer is validated; ungated
// letters are marked read on first open. Receivers browsing from a
// registered account pass their id as ?userId= and get it echoed back
// so the client can associate the letter with that account.
func (h *Handlers) Shared(c *gin.Context) {
	letter, _, ok := h.resolveToken(c)
	if !ok {
		return
	}

	if letter.SecurityType != "" && letter.Status == models.LetterStatusUnread {
		resp := gin.H{
			"locked":           true,
			"securityType":     letter.SecurityType,
			"securityQuestion": letter.SecurityQuestion,
			"title":            letter.Title,
		}
		if uid := c.Query("userId"); uid != "" {
			resp["userId"] = uid
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	if letter.Status == models.LetterStatusUnread {
		if h.markReadOnce(c, letter) {
			h.emitReadReceipt(c, letter, events.TypeLetterOpened)
		}
	}

	resp := gin.H{"locked": false, "letter": h.letterView(letter, false)}
	if uid := c.Query("userId"); uid != "" {
		resp["userId"] = uid
	}
	c.JSON(http.StatusOK, resp)
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// ValidateSecurity checks a submitted security answer. A correct answer
// unlocks the letter, marks it read exactly once and notifies the owner.
func (h *Handlers) ValidateSecurity(c *gin.Context) {
	letter, _, ok := h.resolveToken(c)
	if !ok {
		return
	}
	if letter.SecurityType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "letter has no security gate"})
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !security.VerifyAnswer(letter.SecurityAnswerHash, req.Answer) {
		c.JSON(http.StatusForbidden, gin.H{"valid": false})
		return
	}

	if h.markReadOnce(c, letter) {
		h.emitReadReceipt(c, letter, events.TypeLetterUnlocked)
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "letter": h.letterView(letter, false)})
}

// --- helpers ---

// resolveToken validates the :token parameter and loads its letter.
// Writes the error response itself when validation fails.
func (h *Handlers) resolveToken(c *gin.Context) (*models.Letter, *models.LetterToken, bool) {
	rec, err := h.tokens.Validate(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown share link"})
		case errors.Is(err, tokens.ErrRevoked), errors.Is(err, tokens.ErrExpired):
			c.JSON(http.StatusGone, gin.H{"error": "share link is no longer valid"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate share link"})
		}
		return nil, nil, false
	}

	var letter models.Letter
	if err := h.db.WithContext(c.Request.Context()).First(&letter, rec.LetterID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "letter not found"})
		return nil, nil, false
	}
	return &letter, rec, true
}

// markReadOnce flips unread -> read with a conditional update so exactly
// one request wins, and notifies the owner from the winning request only.
func (h *Handlers) markReadOnce(c *gin.Context, letter *models.Letter) bool {
	now := time.Now()
	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Letter{}).
		Where("id = ? AND status = ?", letter.ID, models.LetterStatusUnread).
		Updates(map[string]interface{}{
			"status":  models.LetterStatusRead,
			"read_at": now,
		})
	if result.Error != nil {
		h.logger.Error("Failed to mark letter read", "letter_id", letter.ID, "error", result.Error.Error())
		return false
	}
	if result.RowsAffected == 0 {
		return false
	}

	letter.Status = models.LetterStatusRead
	letter.ReadAt = &now

	receiver := letter.ReceiverName
	if receiver == "" {
		receiver = letter.ReceiverEmail
	}
	if err := h.notify.Notify(c.Request.Context(), letter.UserID, models.NotificationLetterRead,
		receiver+" opened your letter \""+letter.Title+"\""); err != nil {
		h.logger.Error("Failed to create read notification", "letter_id", letter.ID, "error", err.Error())
	}
	return true
}

// emitReadReceipt publishes a letter event; best-effort when the stream
// publisher is configured.
func (h *Handlers) emitReadReceipt(c *gin.Context, letter *models.Letter, eventType string) {
	if h.events == nil {
		return
	}
	_, err := h.events.PublishLetterEvent(c.Request.Context(), events.LetterEvent{
		Type:          eventType,
		LetterID:      letter.ID,
		OwnerUserID:   letter.UserID,
		ReceiverEmail: letter.ReceiverEmail,
	})
	if err != nil {
		h.logger.Error("Failed to publish letter event", "letter_id", letter.ID, "error", err.Error())
	}
}

func (h *Handlers) ownedLetter(c *gin.Context, uid uint) (*models.Letter, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid letter id"})
		return nil, false
	}

	var letter models.Letter
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		First(&letter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "letter not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load letter"})
		}
		return nil, false
	}
	return &letter, true
}

// letterView serializes a letter. The security answer hash never leaves
// the server; owner views additionally include receiver/security metadata.
func (h *Handlers) letterView(letter *models.Letter, ownerView bool) gin.H {
	view := gin.H{
		"id":        letter.ID,
		"title":     letter.Title,
		"content":   letter.Content,
		"status":    letter.Status,
		"readAt":    letter.ReadAt,
		"createdAt": letter.CreatedAt,
		"music": gin.H{
			"title":  letter.MusicTitle,
			"artist": letter.MusicArtist,
			"url":    letter.MusicURL,
			"key":    letter.MusicKey,
		},
		"voiceKey": letter.VoiceKey,
	}
	if ownerView {
		view["receiverEmail"] = letter.ReceiverEmail
		view["receiverName"] = letter.ReceiverName
		view["securityType"] = letter.SecurityType
		view["securityQuestion"] = letter.SecurityQuestion
	}
	return view
}

// Package dates implements date invitations attached to letters and the
// receiver's accept/decline response flow.
package dates

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elgen19/dearly-server/internal/auth"
	"github.com/elgen19/dearly-server/internal/mailer"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/notifications"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Handlers bundles the date invitation routes' dependencies
type Handlers struct {
	db           *gorm.DB
	notify       *notifications.Service
	logger       *slog.Logger
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the date invitation routes
func NewHandlers(db *gorm.DB, notify *notifications.Service, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{db: db, notify: notify, logger: logger, enqueueEmail: enqueueEmail}
}

type createRequest struct {
	LetterID      uint           `json:"letterId"`
	Title         string         `json:"title"`
	Location      string         `json:"location"`
	ProposedTimes datatypes.JSON `json:"proposedTimes"`
}

// Create attaches a date invitation to one of the user's letters
func (h *Handlers) Create(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var letter models.Letter
	if err := h.db.Where("id = ? AND user_id = ?", req.LetterID, uid).First(&letter).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "letter not found"})
		return
	}

	invite := models.DateInvitation{
		UserID:        uid,
		LetterID:      req.LetterID,
		Title:         req.Title,
		Location:      req.Location,
		ProposedTimes: req.ProposedTimes,
		Status:        models.DateStatusPending,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create invitation"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"invitation": view(&invite)})
}

// ListByLetter returns the invitations attached to a letter, for the
// shared letter page.
func (h *Handlers) ListByLetter(c *gin.Context) {
	letterID, err := strconv.ParseUint(c.Param("letterId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid letter id"})
		return
	}

	var invites []models.DateInvitation
	if err := h.db.WithContext(c.Request.Context()).
		Where("letter_id = ?", letterID).
		Find(&invites).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list invitations"})
		return
	}

	views := make([]gin.H, 0, len(invites))
	for i := range invites {
		views = append(views, view(&invites[i]))
	}
	c.JSON(http.StatusOK, gin.H{"invitations": views})
}

// Update modifies a pending invitation. Invitations that already have a
// response are frozen.
func (h *Handlers) Update(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation id"})
		return
	}

	var invite models.DateInvitation
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		First(&invite).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
		return
	}
	if invite.Status != models.DateStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "invitation has already been answered"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updates := map[string]interface{}{
		"title":    req.Title,
		"location": req.Location,
	}
	if len(req.ProposedTimes) > 0 {
		updates["proposed_times"] = req.ProposedTimes
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&invite).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update invitation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitation": view(&invite)})
}

// Delete removes one of the user's invitations
func (h *Handlers) Delete(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		Delete(&models.DateInvitation{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete invitation"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type respondRequest struct {
	Status     string     `json:"status"` // accepted or declined
	ChosenTime *time.Time `json:"chosenTime"`
	Message    string     `json:"message"`
}

// Respond records the receiver's answer. The conditional update lets only
// the first response through; the sender is notified and emailed once.
func (h *Handlers) Respond(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invitation id"})
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Status != models.DateStatusAccepted && req.Status != models.DateStatusDeclined {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be accepted or declined"})
		return
	}
	if req.Status == models.DateStatusAccepted && req.ChosenTime == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chosenTime is required when accepting"})
		return
	}

	ctx := c.Request.Context()
	var invite models.DateInvitation
	if err := h.db.WithContext(ctx).First(&invite, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invitation not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load invitation"})
		}
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":           req.Status,
		"response_message": req.Message,
		"responded_at":     now,
	}
	if req.ChosenTime != nil {
		updates["chosen_time"] = *req.ChosenTime
	}

	result := h.db.WithContext(ctx).
		Model(&models.DateInvitation{}).
		Where("id = ? AND status = ?", invite.ID, models.DateStatusPending).
		Updates(updates)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record response"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "invitation was already answered"})
		return
	}

	h.onResponse(c, &invite, req.Status, req.Message)

	c.JSON(http.StatusOK, gin.H{"status": req.Status})
}

func (h *Handlers) onResponse(c *gin.Context, invite *models.DateInvitation, status, message string) {
	ctx := c.Request.Context()

	var letter models.Letter
	receiverName := "Your date"
	if err := h.db.WithContext(ctx).First(&letter, invite.LetterID).Error; err == nil && letter.ReceiverName != "" {
		receiverName = letter.ReceiverName
	}

	if err := h.notify.Notify(ctx, invite.UserID, models.NotificationDateResponse,
		receiverName+" "+status+" your date invitation \""+invite.Title+"\""); err != nil {
		h.logger.Error("Failed to create date notification", "invitation_id", invite.ID, "error", err.Error())
	}

	var owner models.User
	if err := h.db.WithContext(ctx).First(&owner, invite.UserID).Error; err != nil {
		h.logger.Error("Failed to load owner for date email", "invitation_id", invite.ID, "error", err.Error())
		return
	}
	msg := mailer.DateResponseEmail(owner.Email, receiverName, invite.Title, status, message)
	if err := h.enqueueEmail(msg); err != nil {
		h.logger.Error("Failed to enqueue date response email", "invitation_id", invite.ID, "error", err.Error())
	}
}

func view(d *models.DateInvitation) gin.H {
	return gin.H{
		"id":              d.ID,
		"letterId":        d.LetterID,
		"title":           d.Title,
		"location":        d.Location,
		"proposedTimes":   d.ProposedTimes,
		"status":          d.Status,
		"chosenTime":      d.ChosenTime,
		"responseMessage": d.ResponseMessage,
		"respondedAt":     d.RespondedAt,
		"createdAt":       d.CreatedAt,
	}
}

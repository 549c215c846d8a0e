// Package games implements the matching games attached to letters and
// their completion-reward flow.
package games

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

// Handlers bundles the game routes' dependencies
type Handlers struct {
	db           *gorm.DB
	notify       *notifications.Service
	logger       *slog.Logger
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the game routes
func NewHandlers(db *gorm.DB, notify *notifications.Service, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{db: db, notify: notify, logger: logger, enqueueEmail: enqueueEmail}
}

type createRequest struct {
	LetterID uint           `json:"letterId"`
	Title    string         `json:"title"`
	Pairs    datatypes.JSON `json:"pairs"`
	Reward   string         `json:"reward"`
}

// Create attaches a game to one of the user's letters
func (h *Handlers) Create(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Letter must exist and belong to the caller
	var letter models.Letter
	if err := h.db.Where("id = ? AND user_id = ?", req.LetterID, uid).First(&letter).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "letter not found"})
		return
	}

	game := models.Game{
		UserID:   uid,
		LetterID: req.LetterID,
		Title:    req.Title,
		Pairs:    req.Pairs,
		Reward:   req.Reward,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&game).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create game"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"game": ownerView(&game)})
}

// ListByLetter returns the games attached to a letter. Used by the shared
// letter page, so the reward is withheld until completion.
func (h *Handlers) ListByLetter(c *gin.Context) {
	letterID, err := strconv.ParseUint(c.Param("letterId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid letter id"})
		return
	}

	var games []models.Game
	if err := h.db.WithContext(c.Request.Context()).
		Where("letter_id = ?", letterID).
		Find(&games).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list games"})
		return
	}

	views := make([]gin.H, 0, len(games))
	for i := range games {
		views = append(views, receiverView(&games[i]))
	}
	c.JSON(http.StatusOK, gin.H{"games": views})
}

// Update modifies one of the user's games
func (h *Handlers) Update(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	game, ok := h.ownedGame(c, uid)
	if !ok {
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updates := map[string]interface{}{
		"title":  req.Title,
		"reward": req.Reward,
	}
	if len(req.Pairs) > 0 {
		updates["pairs"] = req.Pairs
	}
	if err := h.db.WithContext(c.Request.Context()).Model(game).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": ownerView(game)})
}

// Delete removes one of the user's games
func (h *Handlers) Delete(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	game, ok := h.ownedGame(c, uid)
	if !ok {
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Delete(game).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete game"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Complete marks a game finished. The conditional update makes completion
// idempotent: only the first request reveals the prize email and pings the
// owner; repeats still see the reward.
func (h *Handlers) Complete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	ctx := c.Request.Context()
	var game models.Game
	if err := h.db.WithContext(ctx).First(&game, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		return
	}

	now := time.Now()
	result := h.db.WithContext(ctx).
		Model(&models.Game{}).
		Where("id = ? AND completed = false", game.ID).
		Updates(map[string]interface{}{"completed": true, "completed_at": now})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete game"})
		return
	}

	if result.RowsAffected > 0 {
		h.onFirstCompletion(c, &game)
	}

	c.JSON(http.StatusOK, gin.H{"completed": true, "reward": game.Reward})
}

func (h *Handlers) onFirstCompletion(c *gin.Context, game *models.Game) {
	ctx := c.Request.Context()

	if err := h.notify.Notify(ctx, game.UserID, models.NotificationGameDone,
		"Your game \""+game.Title+"\" was completed"); err != nil {
		h.logger.Error("Failed to create game notification", "game_id", game.ID, "error", err.Error())
	}

	if game.Reward == "" {
		return
	}
	var letter models.Letter
	if err := h.db.WithContext(ctx).First(&letter, game.LetterID).Error; err != nil {
		h.logger.Error("Failed to load letter for prize email", "game_id", game.ID, "error", err.Error())
		return
	}
	msg := mailer.GamePrizeEmail(letter.ReceiverEmail, game.Title, game.Reward)
	if err := h.enqueueEmail(msg); err != nil {
		h.logger.Error("Failed to enqueue prize email", "game_id", game.ID, "error", err.Error())
	}
}

func (h *Handlers) ownedGame(c *gin.Context, uid uint) (*models.Game, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return nil, false
	}

	var game models.Game
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "game not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load game"})
		}
		return nil, false
	}
	return &game, true
}

func ownerView(g *models.Game) gin.H {
	return gin.H{
		"id":          g.ID,
		"letterId":    g.LetterID,
		"title":       g.Title,
		"pairs":       g.Pairs,
		"reward":      g.Reward,
		"completed":   g.Completed,
		"completedAt": g.CompletedAt,
		"createdAt":   g.CreatedAt,
	}
}

// receiverView withholds the reward until the game is completed
func receiverView(g *models.Game) gin.H {
	view := gin.H{
		"id":        g.ID,
		"letterId":  g.LetterID,
		"title":     g.Title,
		"pairs":     g.Pairs,
		"completed": g.Completed,
	}
	if g.Completed {
		view["reward"] = g.Reward
	}
	return view
}

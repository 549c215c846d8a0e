// Package quizzes implements multiple-choice quizzes attached to letters,
// scoring on submission and threshold-based rewards.
package quizzes

import (
	"encoding/json"
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

// question is the stored shape of one quiz question
type question struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
}

// rewardTier maps a minimum score to a reward message
type rewardTier struct {
	MinScore int    `json:"minScore"`
	Reward   string `json:"reward"`
}

// Handlers bundles the quiz routes' dependencies
type Handlers struct {
	db           *gorm.DB
	notify       *notifications.Service
	logger       *slog.Logger
	enqueueEmail func(mailer.Message) error
}

// NewHandlers wires the quiz routes
func NewHandlers(db *gorm.DB, notify *notifications.Service, logger *slog.Logger, enqueueEmail func(mailer.Message) error) *Handlers {
	return &Handlers{db: db, notify: notify, logger: logger, enqueueEmail: enqueueEmail}
}

type createRequest struct {
	LetterID  uint           `json:"letterId"`
	Title     string         `json:"title"`
	Questions datatypes.JSON `json:"questions"`
	Rewards   datatypes.JSON `json:"rewards"`
}

// Create attaches a quiz to one of the user's letters
func (h *Handlers) Create(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var qs []question
	if err := json.Unmarshal(req.Questions, &qs); err != nil || len(qs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "questions must be a non-empty array"})
		return
	}
	for i, q := range qs {
		if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question " + strconv.Itoa(i+1) + " has an out-of-range answer"})
			return
		}
	}

	var letter models.Letter
	if err := h.db.Where("id = ? AND user_id = ?", req.LetterID, uid).First(&letter).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "letter not found"})
		return
	}

	quiz := models.Quiz{
		UserID:    uid,
		LetterID:  req.LetterID,
		Title:     req.Title,
		Questions: req.Questions,
		Rewards:   req.Rewards,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&quiz).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create quiz"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quiz": ownerView(&quiz)})
}

// ListByLetter returns the quizzes attached to a letter with answers and
// rewards stripped, for the shared letter page.
func (h *Handlers) ListByLetter(c *gin.Context) {
	letterID, err := strconv.ParseUint(c.Param("letterId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid letter id"})
		return
	}

	var quizzes []models.Quiz
	if err := h.db.WithContext(c.Request.Context()).
		Where("letter_id = ?", letterID).
		Find(&quizzes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list quizzes"})
		return
	}

	views := make([]gin.H, 0, len(quizzes))
	for i := range quizzes {
		view, err := receiverView(&quizzes[i])
		if err != nil {
			h.logger.Error("Failed to build quiz view", "quiz_id", quizzes[i].ID, "error", err.Error())
			continue
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": views})
}

// Update modifies one of the user's quizzes
func (h *Handlers) Update(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz id"})
		return
	}

	var quiz models.Quiz
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		First(&quiz).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz not found"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	updates := map[string]interface{}{"title": req.Title}
	if len(req.Questions) > 0 {
		var qs []question
		if err := json.Unmarshal(req.Questions, &qs); err != nil || len(qs) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "questions must be a non-empty array"})
			return
		}
		for i, q := range qs {
			if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "question " + strconv.Itoa(i+1) + " has an out-of-range answer"})
				return
			}
		}
		updates["questions"] = req.Questions
	}
	if len(req.Rewards) > 0 {
		updates["rewards"] = req.Rewards
	}
	if err := h.db.WithContext(c.Request.Context()).Model(&quiz).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update quiz"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quiz": ownerView(&quiz)})
}

// Delete removes one of the user's quizzes
func (h *Handlers) Delete(c *gin.Context) {
	uid, _ := auth.CurrentUserID(c)
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz id"})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", id, uid).
		Delete(&models.Quiz{})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete quiz"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type submitRequest struct {
	Answers []int `json:"answers"`
}

// Submit scores a receiver's answers. The first submission completes the
// quiz, records the score, notifies the owner and mails the earned reward.
func (h *Handlers) Submit(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz id"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	var quiz models.Quiz
	if err := h.db.WithContext(ctx).First(&quiz, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz not found"})
		return
	}

	var qs []question
	if err := json.Unmarshal(quiz.Questions, &qs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "quiz is malformed"})
		return
	}
	if len(req.Answers) != len(qs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected " + strconv.Itoa(len(qs)) + " answers"})
		return
	}

	score := Score(qs, req.Answers)
	reward := PickReward(quiz.Rewards, score)

	now := time.Now()
	result := h.db.WithContext(ctx).
		Model(&models.Quiz{}).
		Where("id = ? AND completed = false", quiz.ID).
		Updates(map[string]interface{}{"completed": true, "score": score, "completed_at": now})
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record submission"})
		return
	}

	if result.RowsAffected > 0 {
		h.onFirstSubmission(c, &quiz, score, reward)
	}

	c.JSON(http.StatusOK, gin.H{
		"score":  score,
		"total":  len(qs),
		"reward": reward,
	})
}

func (h *Handlers) onFirstSubmission(c *gin.Context, quiz *models.Quiz, score int, reward string) {
	ctx := c.Request.Context()

	if err := h.notify.Notify(ctx, quiz.UserID, models.NotificationQuizDone,
		"Your quiz \""+quiz.Title+"\" was completed with score "+strconv.Itoa(score)); err != nil {
		h.logger.Error("Failed to create quiz notification", "quiz_id", quiz.ID, "error", err.Error())
	}

	if reward == "" {
		return
	}
	var letter models.Letter
	if err := h.db.WithContext(ctx).First(&letter, quiz.LetterID).Error; err != nil {
		h.logger.Error("Failed to load letter for reward email", "quiz_id", quiz.ID, "error", err.Error())
		return
	}
	msg := mailer.GamePrizeEmail(letter.ReceiverEmail, quiz.Title, reward)
	if err := h.enqueueEmail(msg); err != nil {
		h.logger.Error("Failed to enqueue reward email", "quiz_id", quiz.ID, "error", err.Error())
	}
}

// Score counts correct answers. Extra or missing answers were rejected
// before this point.
func Score(qs []question, answers []int) int {
	score := 0
	for i, q := range qs {
		if i < len(answers) && answers[i] == q.AnswerIndex {
			score++
		}
	}
	return score
}

// PickReward returns the highest tier whose threshold the score meets
func PickReward(rewards datatypes.JSON, score int) string {
	if len(rewards) == 0 {
		return ""
	}
	var tiers []rewardTier
	if err := json.Unmarshal(rewards, &tiers); err != nil {
		return ""
	}

	best := ""
	bestMin := -1
	for _, t := range tiers {
		if score >= t.MinScore && t.MinScore > bestMin {
			best = t.Reward
			bestMin = t.MinScore
		}
	}
	return best
}

func ownerView(q *models.Quiz) gin.H {
	return gin.H{
		"id":          q.ID,
		"letterId":    q.LetterID,
		"title":       q.Title,
		"questions":   q.Questions,
		"rewards":     q.Rewards,
		"completed":   q.Completed,
		"score":       q.Score,
		"completedAt": q.CompletedAt,
		"createdAt":   q.CreatedAt,
	}
}

// receiverView strips answer indexes and rewards
func receiverView(q *models.Quiz) (gin.H, error) {
	var qs []question
	if err := json.Unmarshal(q.Questions, &qs); err != nil {
		return nil, err
	}

	stripped := make([]gin.H, 0, len(qs))
	for _, qq := range qs {
		stripped = append(stripped, gin.H{
			"question": qq.Question,
			"options":  qq.Options,
		})
	}

	return gin.H{
		"id":        q.ID,
		"letterId":  q.LetterID,
		"title":     q.Title,
		"questions": stripped,
		"completed": q.Completed,
		"score":     q.Score,
	}, nil
}

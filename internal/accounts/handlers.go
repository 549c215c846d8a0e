// Package accounts implements lightweight receiver accounts: recipients
// register with just an email to see every letter addressed to them.
package accounts

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/elgen19/dearly-server/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type registerRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// RegisterHandler upserts a receiver account keyed by email
func RegisterHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
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
		now := time.Now()

		var account models.ReceiverAccount
		result := db.WithContext(ctx).Where("email = ?", email).First(&account)
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			account = models.ReceiverAccount{Email: email, Name: req.Name, LastSeenAt: &now}
			if err := db.WithContext(ctx).Create(&account).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create account"})
				return
			}
		case result.Error == nil:
			updates := map[string]interface{}{"last_seen_at": now}
			if req.Name != "" {
				updates["name"] = req.Name
			}
			db.WithContext(ctx).Model(&account).Updates(updates)
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up account"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"account": gin.H{
				"id":    account.ID,
				"email": account.Email,
				"name":  account.Name,
			},
		})
	}
}

// LettersHandler lists the letters addressed to a receiver email. Only
// metadata is returned; content stays behind each letter's share token.
func LettersHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.ToLower(strings.TrimSpace(c.Param("email")))
		if email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}

		var letters []models.Letter
		if err := db.WithContext(c.Request.Context()).
			Where("receiver_email = ?", email).
			Order("created_at DESC").
			Find(&letters).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list letters"})
			return
		}

		views := make([]gin.H, 0, len(letters))
		for _, letter := range letters {
			views = append(views, gin.H{
				"id":        letter.ID,
				"title":     letter.Title,
				"status":    letter.Status,
				"hasGate":   letter.SecurityType != "",
				"createdAt": letter.CreatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"letters": views})
	}
}

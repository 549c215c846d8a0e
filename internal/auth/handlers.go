package auth

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/elgen19/dearly-server/internal/config"
	"github.com/elgen19/dearly-server/internal/models"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"
	"gorm.io/gorm"
)

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Add("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, upserts the user and their
// OAuth identity, and stores the user's ID in the session.
func HandleCallback(db *gorm.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := c.Request.URL.Query()
		q.Add("provider", "google")
		c.Request.URL.RawQuery = q.Encode()

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			log.Printf("Auth error: %v", err)
			c.Redirect(http.StatusFound, cfg.BaseURL+"/login?error=auth_failed")
			return
		}

		now := time.Now()
		var user models.User
		result := db.Where("email = ?", gothUser.Email).First(&user)
		switch {
		case errors.Is(result.Error, gorm.ErrRecordNotFound):
			user = models.User{
				Email:         gothUser.Email,
				FirstName:     gothUser.FirstName,
				LastName:      gothUser.LastName,
				EmailVerified: true, // Google accounts arrive verified
				LastLoginAt:   &now,
			}
			if err := db.Create(&user).Error; err != nil {
				log.Printf("User create error: %v", err)
				c.Redirect(http.StatusFound, cfg.BaseURL+"/login?error=auth_failed")
				return
			}
		case result.Error == nil:
			db.Model(&user).Updates(map[string]interface{}{
				"first_name":    gothUser.FirstName,
				"last_name":     gothUser.LastName,
				"last_login_at": now,
			})
		default:
			log.Printf("User lookup error: %v", result.Error)
			c.Redirect(http.StatusFound, cfg.BaseURL+"/login?error=auth_failed")
			return
		}

		upsertIdentity(db, user.ID, gothUser.UserID, gothUser.AccessToken, gothUser.RefreshToken, gothUser.ExpiresAt)

		session := sessions.Default(c)
		session.Set("user_id", user.ID)
		session.Set("user_email", user.Email)
		if err := session.Save(); err != nil {
			log.Printf("Session save error: %v", err)
			c.Redirect(http.StatusFound, cfg.BaseURL+"/login?error=session_failed")
			return
		}

		log.Printf("User authenticated: %s", user.Email)
		c.Redirect(http.StatusFound, cfg.BaseURL+"/letters")
	}
}

// upsertIdentity stores the OAuth identity; tokens are encrypted by the
// AuthIdentity model hooks.
func upsertIdentity(db *gorm.DB, userID uint, providerUserID, accessToken, refreshToken string, expiry time.Time) {
	var identity models.AuthIdentity
	result := db.Where("provider = ? AND provider_user_id = ?", "google", providerUserID).First(&identity)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		identity = models.AuthIdentity{
			UserID:         userID,
			Provider:       "google",
			ProviderUserID: providerUserID,
			AccessToken:    accessToken,
			RefreshToken:   refreshToken,
		}
		if !expiry.IsZero() {
			identity.TokenExpiry = &expiry
		}
		if err := db.Create(&identity).Error; err != nil {
			log.Printf("Identity create error: %v", err)
		}
		return
	}
	if result.Error != nil {
		log.Printf("Identity lookup error: %v", result.Error)
		return
	}

	identity.AccessToken = accessToken
	if refreshToken != "" {
		identity.RefreshToken = refreshToken
	}
	if !expiry.IsZero() {
		identity.TokenExpiry = &expiry
	}
	if err := db.Save(&identity).Error; err != nil {
		log.Printf("Identity update error: %v", err)
	}
}

// HandleLogout clears the session
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		log.Printf("Session clear error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// HandleMe returns the authenticated user's profile
func HandleMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := CurrentUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		var user models.User
		if err := db.First(&user, uid).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":            user.ID,
			"email":         user.Email,
			"firstName":     user.FirstName,
			"lastName":      user.LastName,
			"emailVerified": user.EmailVerified,
			"createdAt":     user.CreatedAt,
		})
	}
}

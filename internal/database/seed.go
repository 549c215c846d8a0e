package database

import (
	"log"
	"time"

	"github.com/elgen19/dearly-server/internal/models"
	"github.com/elgen19/dearly-server/internal/security"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SeedDevData populates the database with development test data.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existingUser models.User
	result := db.Where("email = ?", "dev@dearly.local").First(&existingUser)
	if result.Error == nil {
		log.Println("Seed data already exists, skipping")
		return nil
	}

	user := models.User{
		Email:         "dev@dearly.local",
		FirstName:     "Dev",
		LastName:      "User",
		EmailVerified: true,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}

	letter := models.Letter{
		UserID: user.ID,
		Title:  "A letter for Amy",
		Content: datatypes.JSON(`[
			{"type":"heading","text":"Dear Amy"},
			{"type":"paragraph","text":"I wrote you this to say thank you for everything."}
		]`),
		ReceiverEmail:      "amy@example.com",
		ReceiverName:       "Amy",
		Status:             models.LetterStatusUnread,
		SecurityType:       models.SecurityTypeQuiz,
		SecurityQuestion:   "Where did we first meet?",
		SecurityAnswerHash: security.HashAnswer("central park"),
	}
	if err := db.Create(&letter).Error; err != nil {
		return err
	}

	token := models.LetterToken{
		Token:     "1111111111111111111111111111111111111111111111111111111111111111",
		UserID:    user.ID,
		LetterID:  letter.ID,
		ExpiresAt: time.Now().Add(models.TokenValidity),
		IsActive:  true,
	}
	if err := db.Create(&token).Error; err != nil {
		return err
	}

	game := models.Game{
		UserID:   user.ID,
		LetterID: letter.ID,
		Title:    "Memories",
		Pairs: datatypes.JSON(`[
			{"left":"first date","right":"the pier"},
			{"left":"first trip","right":"lisbon"}
		]`),
		Reward: "Dinner at the place by the river",
	}
	if err := db.Create(&game).Error; err != nil {
		return err
	}

	scheduled := models.ScheduledEmail{
		UserID:         user.ID,
		LetterID:       letter.ID,
		RecipientEmail: letter.ReceiverEmail,
		Subject:        "Dev sent you a letter",
		BodyHTML:       "<p>Open your letter</p>",
		ScheduledAt:    time.Now().Add(10 * time.Minute),
		Status:         models.ScheduledEmailStatusPending,
	}
	if err := db.Create(&scheduled).Error; err != nil {
		return err
	}

	log.Println("Seed data created: dev@dearly.local with one letter, game and scheduled email")
	return nil
}

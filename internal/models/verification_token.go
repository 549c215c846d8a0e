package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailVerificationToken is a single-use, expiring token mailed to a user
// to confirm address ownership.
type EmailVerificationToken struct {
	gorm.Model
	Email     string     `gorm:"index;not null"`
	Token     string     `gorm:"uniqueIndex;not null"`
	ExpiresAt time.Time  `gorm:"not null"`
	Used      bool       `gorm:"not null;default:false"`
	UsedAt    *time.Time
}

func (EmailVerificationToken) TableName() string {
	return "email_verification_tokens"
}

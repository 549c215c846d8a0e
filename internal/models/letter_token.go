package models

import (
	"time"

	"gorm.io/gorm"
)

// Token lifecycle constants
const (
	// TokenValidity is the window a freshly issued or renewed token stays valid.
	TokenValidity = 90 * 24 * time.Hour
	// TokenRenewalWindow is how close to expiry a presented token must be
	// before it is auto-renewed.
	TokenRenewalWindow = 30 * 24 * time.Hour
	// TokenMaxRenewals caps how many times a single token can be auto-renewed.
	TokenMaxRenewals = 10
)

// LetterToken maps an opaque 256-bit hex token to a letter, granting bearer
// access via a share link. Deactivated on regeneration or letter deletion.
type LetterToken struct {
	gorm.Model
	Token        string    `gorm:"uniqueIndex;not null"`
	UserID       uint      `gorm:"not null;index"`
	LetterID     uint      `gorm:"not null;index"`
	Letter       Letter    `gorm:"constraint:OnDelete:CASCADE;"`
	ExpiresAt    time.Time `gorm:"not null"`
	RenewalCount int       `gorm:"not null;default:0"`
	IsActive     bool      `gorm:"not null;default:true"`
}

func (LetterToken) TableName() string {
	return "letter_tokens"
}

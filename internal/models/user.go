package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents an application user created on sign-up or Google sign-in
type User struct {
	gorm.Model
	Email         string `gorm:"uniqueIndex:idx_users_email_not_deleted,where:deleted_at IS NULL;not null"`
	FirstName     string `gorm:"not null;default:''"`
	LastName      string `gorm:"not null;default:''"`
	EmailVerified bool   `gorm:"not null;default:false"`
	LastLoginAt   *time.Time

	// Associations
	AuthIdentities []AuthIdentity `gorm:"constraint:OnDelete:CASCADE;"`
	Letters        []Letter       `gorm:"constraint:OnDelete:CASCADE;"`
	Notifications  []Notification `gorm:"constraint:OnDelete:CASCADE;"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// ReceiverAccount is a lightweight self-registered account keyed by email,
// letting letter recipients see everything addressed to them without a
// full sign-up.
type ReceiverAccount struct {
	gorm.Model
	Email      string `gorm:"uniqueIndex:idx_receiver_accounts_email_not_deleted,where:deleted_at IS NULL;not null"`
	Name       string `gorm:"not null;default:''"`
	LastSeenAt *time.Time
}

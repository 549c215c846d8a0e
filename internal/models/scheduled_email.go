package models

import (
	"time"

	"gorm.io/gorm"
)

// ScheduledEmail status constants
const (
	ScheduledEmailStatusPending = "pending"
	ScheduledEmailStatusSending = "sending"
	ScheduledEmailStatusFailed  = "failed"
)

// ScheduledEmail is a deferred send request. The scheduler claims due
// pending rows (conditional update pending -> sending) so overlapping
// ticks never double-send. Successful sends delete the row; failures keep
// it with status "failed" for a manual resend.
type ScheduledEmail struct {
	gorm.Model
	UserID         uint      `gorm:"index"`
	LetterID       uint      `gorm:"index"`
	RecipientEmail string    `gorm:"not null;index"`
	Subject        string    `gorm:"not null"`
	BodyHTML       string    `gorm:"type:text;not null"`
	ScheduledAt    time.Time `gorm:"not null;index"`
	Status         string    `gorm:"not null;default:'pending';index"`
	Attempts       int       `gorm:"not null;default:0"`
	LastError      string    `gorm:"type:text;not null;default:''"`
}

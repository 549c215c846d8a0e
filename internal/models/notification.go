package models

import "gorm.io/gorm"

// Notification type constants
const (
	NotificationLetterRead   = "letter_read"
	NotificationGameDone     = "game_completed"
	NotificationQuizDone     = "quiz_completed"
	NotificationDateResponse = "date_response"
	NotificationEmailFailed  = "email_failed"
)

// Notification is a per-user append-only event record
type Notification struct {
	gorm.Model
	UserID  uint   `gorm:"not null;index"`
	Type    string `gorm:"not null"`
	Message string `gorm:"type:text;not null"`
	Read    bool   `gorm:"not null;default:false;index"`
}

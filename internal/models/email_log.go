package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailLog status constants
const (
	EmailLogStatusSuccess = "success"
	EmailLogStatusFailed  = "failed"
)

// EmailLog records every outbound send attempt, direct or scheduled
type EmailLog struct {
	gorm.Model
	SentTo   string    `gorm:"not null;index"`
	Subject  string    `gorm:"not null"`
	Provider string    `gorm:"not null"`
	Status   string    `gorm:"not null;index"`
	Error    string    `gorm:"type:text;not null;default:''"`
	SentAt   time.Time `gorm:"not null"`
}

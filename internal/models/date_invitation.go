package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DateInvitation status constants
const (
	DateStatusPending  = "pending"
	DateStatusAccepted = "accepted"
	DateStatusDeclined = "declined"
)

// DateInvitation is a date proposal attached to a letter. ProposedTimes is
// a JSONB array of RFC 3339 timestamps the receiver can pick from.
type DateInvitation struct {
	gorm.Model
	UserID          uint           `gorm:"not null;index"`
	LetterID        uint           `gorm:"not null;index"`
	Title           string         `gorm:"not null;default:''"`
	Location        string         `gorm:"not null;default:''"`
	ProposedTimes   datatypes.JSON `gorm:"type:jsonb"`
	Status          string         `gorm:"not null;default:'pending';index"`
	ChosenTime      *time.Time
	ResponseMessage string `gorm:"type:text;not null;default:''"`
	RespondedAt     *time.Time
}

package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Game is a matching/memory game attached to a letter. Pairs is a JSONB
// array of {left, right} card pairs; Reward is revealed on completion.
type Game struct {
	gorm.Model
	UserID      uint           `gorm:"not null;index"`
	LetterID    uint           `gorm:"not null;index"`
	Title       string         `gorm:"not null;default:''"`
	Pairs       datatypes.JSON `gorm:"type:jsonb"`
	Reward      string         `gorm:"type:text;not null;default:''"`
	Completed   bool           `gorm:"not null;default:false"`
	CompletedAt *time.Time
}

// Quiz is a multiple-choice quiz attached to a letter. Questions is a JSONB
// array of {question, options, answerIndex}; Rewards maps score thresholds
// to reward messages.
type Quiz struct {
	gorm.Model
	UserID      uint           `gorm:"not null;index"`
	LetterID    uint           `gorm:"not null;index"`
	Title       string         `gorm:"not null;default:''"`
	Questions   datatypes.JSON `gorm:"type:jsonb"`
	Rewards     datatypes.JSON `gorm:"type:jsonb"`
	Completed   bool           `gorm:"not null;default:false"`
	Score       int            `gorm:"not null;default:0"`
	CompletedAt *time.Time
}

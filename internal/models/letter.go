package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Letter status constants
const (
	LetterStatusUnread = "unread"
	LetterStatusRead   = "read"
)

// Security gate types. An empty SecurityType means the letter opens without
// a challenge.
const (
	SecurityTypeQuiz = "quiz"
	SecurityTypeDate = "date"
)

// Letter represents a composed, shareable message with optional security
// gate and attachments. Content parts (text blocks, images, embeds) are
// stored as a JSONB array.
type Letter struct {
	gorm.Model
	UserID        uint           `gorm:"not null;index"`
	User          User           `gorm:"constraint:OnDelete:CASCADE;"`
	Title         string         `gorm:"not null;default:''"`
	Content       datatypes.JSON `gorm:"type:jsonb"`
	ReceiverEmail string         `gorm:"not null;index"`
	ReceiverName  string         `gorm:"not null;default:''"`
	Status        string         `gorm:"not null;default:'unread';index"`
	ReadAt        *time.Time

	// Security gate: empty SecurityType means no challenge. The answer is
	// stored as a SHA-256 hex digest of the normalized answer, never as
	// plaintext.
	SecurityType       string `gorm:"not null;default:''"`
	SecurityQuestion   string `gorm:"not null;default:''"`
	SecurityAnswerHash string `gorm:"not null;default:''"`

	// Music attachment (external URL or uploaded object key)
	MusicTitle  string `gorm:"not null;default:''"`
	MusicArtist string `gorm:"not null;default:''"`
	MusicURL    string `gorm:"not null;default:''"`
	MusicKey    string `gorm:"not null;default:''"`

	// Voice message attachment (uploaded object key)
	VoiceKey string `gorm:"not null;default:''"`
}

package events

import "time"

// Stream name constants
const (
	StreamLetterEvents = "letters:events"
)

// Event type constants
const (
	TypeLetterOpened   = "letter_opened"
	TypeLetterUnlocked = "letter_unlocked"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// LetterEvent is a read-receipt event published when a receiver opens or
// unlocks a shared letter. The realtime frontend channel consumes these.
type LetterEvent struct {
	Type          string    `json:"type"`
	LetterID      uint      `json:"letter_id"`
	OwnerUserID   uint      `json:"owner_user_id"`
	ReceiverEmail string    `json:"receiver_email"`
	OccurredAt    time.Time `json:"occurred_at"`
}

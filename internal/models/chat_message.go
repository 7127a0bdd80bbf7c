package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one persisted turn of transcript-grounded conversation.
type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	RecordingID uuid.UUID `json:"recording_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// ChatTurn is the role/content projection sent to the language model.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn projects the message onto role and content.
func (m ChatMessage) Turn() ChatTurn {
	return ChatTurn{Role: m.Role, Content: m.Content}
}

// ValidRole reports whether role may be stored on a chat message.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAssistant
}

package models

import "time"

// Sender identifies who wrote a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Conversation is a chat thread with one persona.
// ScriptCursor is the offset into the persona's fallback script.
type Conversation struct {
	ID           string    `json:"id" db:"id"`
	PersonaID    string    `json:"persona_id" db:"persona_id"`
	Title        string    `json:"title" db:"title"`
	ScriptCursor int       `json:"script_cursor" db:"script_cursor"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationDetail is a conversation together with its persona
type ConversationDetail struct {
	Conversation Conversation `json:"conversation"`
	Persona      Persona      `json:"persona"`
}

// Message is a single conversation turn
type Message struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Sender    `json:"sender"`
	Body           string    `json:"body"`
	Payload        Payload   `json:"-"`
	QuotedBody     string    `json:"quoted_body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Image returns the image payload of the message, if any.
func (m *Message) Image() (*ImagePayload, bool) {
	img, ok := m.Payload.(*ImagePayload)
	return img, ok && img != nil
}

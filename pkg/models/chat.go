package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Sender tags who authored a chat message.
type Sender string

const (
	// SenderUser is an end-user message.
	SenderUser Sender = "user"

	// SenderAssistant is a generated response.
	SenderAssistant Sender = "assistant"

	// SenderSystem is an operator or system notice.
	SenderSystem Sender = "system"
)

// Valid reports whether s is one of the known sender tags.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAssistant, SenderSystem:
		return true
	}
	return false
}

// Label renders the sender for prompt transcripts. Unknown senders degrade
// to a capitalized form instead of failing history rendering.
func (s Sender) Label() string {
	switch s {
	case SenderUser:
		return "User"
	case SenderAssistant:
		return "Assistant"
	case SenderSystem:
		return "System"
	}
	raw := strings.TrimSpace(string(s))
	if raw == "" {
		return "Unknown"
	}
	return cases.Title(language.Und).String(raw)
}

// Session is a chat conversation owned by exactly one user. Cross-user
// access is always denied; deleting a session cascades to its messages.
type Session struct {
	// ID is a random 128-bit identifier.
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// Metadata holds optional free-form session attributes.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
}

// Message is one chat message within a session. Messages are totally
// ordered per session by CreatedAt, ties broken by ID.
type Message struct {
	// ID is the auto-incrementing message id.
	ID int64 `json:"id"`

	// SessionID is the owning session.
	SessionID string `json:"session_id"`

	// Sender tags the author.
	Sender Sender `json:"sender"`

	// Text is the message body.
	Text string `json:"message"`

	// CreatedAt is when the message was appended.
	CreatedAt time.Time `json:"created_at"`
}

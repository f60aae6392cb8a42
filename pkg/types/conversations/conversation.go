// Package conversations defines the data types shared by the conversation
// store, the context window builder and the chat controller: stored messages,
// conversation listings and the role/content pairs sent to the completion API.
package conversations

import (
	"time"

	"github.com/pkg/errors"
)

// Role is the author of a message. The set of roles is closed.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned when a stored or received role is not one of the known roles.
var ErrInvalidRole = errors.New("invalid message role")

// ParseRole decodes a role string. Any value outside the closed set is an error.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleSystem, RoleUser, RoleAssistant:
		return Role(s), nil
	default:
		return "", errors.Wrapf(ErrInvalidRole, "%q", s)
	}
}

// DisplayName returns the label shown next to a message in the terminal
func (r Role) DisplayName() string {
	switch r {
	case RoleAssistant:
		return "ChatGPT"
	case RoleUser:
		return "You"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Message is a persisted message of a conversation
type Message struct {
	ID               int64     `json:"id"`
	ConversationID   int64     `json:"conversationId"`
	Role             Role      `json:"role"`
	Content          string    `json:"content"`
	PromptTokens     int64     `json:"promptTokens"`
	CompletionTokens int64     `json:"completionTokens"`
	CreatedAt        time.Time `json:"createdAt"`
}

// TotalTokens returns the token usage accounted to this message
func (m Message) TotalTokens() int64 {
	return m.PromptTokens + m.CompletionTokens
}

// ChatMessage is a role/content pair as sent to the completion API.
// It is also the shape of the context snapshot kept in the error log.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationListing is a conversation with its derived usage and last activity
type ConversationListing struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Usage      int64     `json:"usage"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// Conversation is a stored conversation row
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	OwnerKey  string    `json:"-"`
	Topic     int64     `json:"topic"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reply is the server-authored message of a successful exchange with its token accounting
type Reply struct {
	Role             Role
	Content          string
	PromptTokens     int64
	CompletionTokens int64
}

// UsageRecord is the token accounting of one stored reply
type UsageRecord struct {
	ConversationID   int64
	PromptTokens     int64
	CompletionTokens int64
	At               time.Time
}

package domain

import "time"

// Role constants for conversation log entries.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation log entry.
type Message struct {
	SessionID string    `json:"sessionId,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Label returns the speaker label used when rendering the log.
func (m Message) Label() string {
	switch m.Role {
	case RoleUser:
		return "USER"
	case RoleAssistant:
		return "IRIS"
	default:
		return m.Role
	}
}

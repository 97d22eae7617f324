// Package session manages per-conversation state: session identity with
// time-based expiry, an append-only message log, and the bounded context
// window handed to answer synthesis.
package session

import (
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Session is one conversation identity. A session is Active until its
// expiry passes with no new messages; expired sessions are never reused,
// only garbage-collected.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Active reports whether the session has not yet expired at the given time.
func (s *Session) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Message is one turn of a conversation. Messages are append-only; Seq is
// assigned by the storage layer and is gapless within a session.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Seq       int64             `json:"seq"`
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Package llm provides the completion client used for answer synthesis.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client produces completions from a chat-style prompt.
type Client interface {
	// Chat sends the messages and returns the model's reply.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the model is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

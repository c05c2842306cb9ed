// Package client talks to completion APIs. The hosted backend speaks the
// OpenAI-style chat-completions wire format; Ollama and Gemini backends
// cover local and Google-hosted models. Clients perform a single attempt
// per call; retry policy belongs to the generation pipeline.
package client

import "context"

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles understood by the completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Client defines the interface for completion API interactions.
type Client interface {
	// Complete sends the messages and returns the first choice's content.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Model returns the model name in use.
	Model() string

	// Close releases client resources.
	Close() error
}

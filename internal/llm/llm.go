// Package llm defines the interface to chat completion providers.
package llm

import (
	"context"
)

// Message roles mirror the wire values of chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion conversation.
type Message struct {
	Role    string
	Content string
}

// Request describes a blocking completion call.
type Request struct {
	// System is an optional system prompt, injected ahead of Messages.
	System string

	// Messages is the conversation so far, oldest first.
	Messages []Message

	// MaxTokens caps the response length. Zero leaves the provider default.
	MaxTokens int

	// Temperature controls sampling. Zero leaves the provider default.
	Temperature float32
}

// Usage reports token consumption of one request.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a finished completion.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Provider defines the interface for chat completion providers.
type Provider interface {
	// Complete performs a blocking chat completion.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider name.
	Name() string

	// Model returns the configured model identifier.
	Model() string
}

// ModerationResult classifies one input text.
type ModerationResult struct {
	// Flagged is true when the provider considers the text a policy
	// violation.
	Flagged bool

	// Categories lists the violated category names.
	Categories []string

	// MaxScore is the highest category confidence, in [0,1].
	MaxScore float64
}

// Moderator screens text against a content policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (*ModerationResult, error)
}

// Package llm provides LLM provider abstractions.
//
// The pipeline consumes a single capability: send a prompt (optionally with
// a system-prompt override), get raw text back. Each provider implementation
// hides API client initialization, authentication, and request/response
// format conversion behind this interface.
package llm

import "context"

// Message is one turn of a chat completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message role names shared by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// Response is the result of one completion request.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// Options adjusts a single completion request.
type Options struct {
	// SystemPrompt, when non-empty, overrides the conversation's system turn.
	SystemPrompt string
	// JSONOnly asks the provider for machine-readable JSON output where the
	// backing API supports a response-format hint. It is advisory: callers
	// still parse defensively.
	JSONOnly bool
}

// Provider defines the abstract interface for LLM providers.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Complete sends a chat completion request.
	Complete(ctx context.Context, messages []Message, opts Options) (Response, error)
}

// Package llm defines the chat completion client interface and the
// provider registry the desk sends persona prompts through.
//
// Each provider speaks its vendor's API directly:
//   - groq: OpenAI-compatible chat completions (the default)
//   - claude: Anthropic messages API
//   - gemini: Google GenAI SDK
//   - ollama: local Ollama HTTP API
package llm

import (
	"context"
	"fmt"
	"time"
)

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// DefaultTimeout bounds a single completion call when the config leaves it unset.
const DefaultTimeout = 120 * time.Second

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"maxTokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`

	// Agent is the persona the request is sent on behalf of. Providers use it
	// for logging only.
	Agent string `json:"agent,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content    string        `json:"content"`
	StopReason string        `json:"stopReason,omitempty"`
	Usage      Usage         `json:"usage"`
	Model      string        `json:"model,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all completion providers implement.
type Client interface {
	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name (e.g., "groq", "gemini").
	Name() string
}

// ProviderError is returned when a provider answers with a non-success status.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// UserPrompt wraps a single prompt string as a one-message request.
func UserPrompt(agent, prompt string) CompletionRequest {
	return CompletionRequest{
		Agent:    agent,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}

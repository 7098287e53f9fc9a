package llm

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// DefaultGroqEndpoint is the OpenAI-compatible chat completions URL.
const DefaultGroqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// GroqClient talks to any OpenAI-compatible chat completions endpoint.
// Groq is the default; pointing Endpoint elsewhere works for other vendors.
type GroqClient struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewGroqClient creates a chat completions client.
func NewGroqClient(apiKey, model, endpoint string, timeout time.Duration) *GroqClient {
	if endpoint == "" {
		endpoint = DefaultGroqEndpoint
	}
	return &GroqClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   newHTTPClient(timeout),
	}
}

// Complete sends a chat completion request.
func (g *GroqClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := chatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}

	headers := map[string]string{}
	if g.apiKey != "" {
		headers["Authorization"] = "Bearer " + g.apiKey
	}

	var result chatCompletionResponse
	if err := postJSON(ctx, g.client, g.Name(), g.endpoint, headers, body, &result); err != nil {
		return nil, err
	}

	out := &CompletionResponse{
		Model:    result.Model,
		Duration: time.Since(start),
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
	}
	if len(result.Choices) > 0 {
		out.Content = result.Choices[0].Message.Content
		out.StopReason = result.Choices[0].FinishReason
	}
	return out, nil
}

// Name returns the provider name.
func (g *GroqClient) Name() string {
	return "groq"
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

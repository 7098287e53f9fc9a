package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/agentdesk/internal/llm"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// FailoverConfig selects the providers and generation settings used for
// persona prompts.
type FailoverConfig struct {
	Primary     string
	Fallbacks   []string
	MaxTokens   int
	Temperature *float64
}

// FailoverClient wraps an LLM registry to try fallback providers on failure.
// Each provider is tried at most once per call.
type FailoverClient struct {
	registry *llm.Registry
	cfg      FailoverConfig
	log      *logging.Logger
}

// NewFailoverClient creates a client that tries the primary provider first,
// then falls back through the list on retryable errors (401, 403, 429, 5xx).
func NewFailoverClient(registry *llm.Registry, cfg FailoverConfig, log *logging.Logger) *FailoverClient {
	if cfg.Primary == "" {
		cfg.Primary = registry.Fallback()
	}
	return &FailoverClient{
		registry: registry,
		cfg:      cfg,
		log:      log.Sub("failover"),
	}
}

// Complete sends prompt on behalf of expertName and returns the response
// text.
func (f *FailoverClient) Complete(ctx context.Context, expertName, prompt string) (string, error) {
	req := llm.UserPrompt(expertName, prompt)
	req.MaxTokens = f.cfg.MaxTokens
	req.Temperature = f.cfg.Temperature

	resp, err := f.CompleteRequest(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// CompleteRequest tries the primary provider, falling back on retryable errors.
func (f *FailoverClient) CompleteRequest(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	models := append([]string{f.cfg.Primary}, f.cfg.Fallbacks...)
	tried := make(map[string]bool, len(models))

	var lastErr error
	for _, model := range models {
		client, err := f.registry.Resolve(model)
		if err != nil {
			f.log.Debug().Str("model", model).Err(err).Msg("no provider for model, skipping")
			lastErr = err
			continue
		}
		if tried[client.Name()] {
			continue
		}
		tried[client.Name()] = true

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if isRetryable(err) {
			f.log.Warn().
				Str("provider", client.Name()).
				Str("agent", req.Agent).
				Err(err).
				Msg("retryable error, trying next provider")
			continue
		}

		// Non-retryable error, don't try more providers
		return nil, err
	}

	if lastErr == nil {
		lastErr = errors.New("no LLM provider configured")
	}
	return nil, lastErr
}

// isRetryable checks if the error suggests trying another provider.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *llm.ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity") ||
		strings.Contains(msg, "timeout")
}

package llm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Registry manages provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name/alias to a provider.
// e.g., Alias("llama3", "groq") means "llama3" resolves to the "groq" provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Fallback returns the default provider name.
func (r *Registry) Fallback() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}

	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}

	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}

	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// providerAliases are model names that resolve to a provider without
// configuring them explicitly.
var providerAliases = map[string][]string{
	"groq":   {"llama3", "llama-3.3-70b-versatile", "mixtral", "mixtral-8x7b-32768"},
	"claude": {"sonnet", "opus", "haiku", "claude-sonnet", "claude-opus", "claude-haiku"},
	"gemini": {"gemini-pro", "gemini-2.5-flash", "gemini-2.5-pro"},
	"ollama": {"llama", "llama2", "mistral"},
}

// NewRegistryFromConfig builds a Registry from the configured providers.
// Providers missing credentials are skipped (ollama needs none). The
// configured primary provider becomes the fallback.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := cfg.Providers[name]
		client := newProviderClient(name, p, timeout)
		if client == nil {
			reg.log.Debug().Str("provider", name).Msg("provider not usable, skipping")
			continue
		}
		reg.Register(name, client)
		for _, alias := range providerAliases[name] {
			reg.Alias(alias, name)
		}
		if p.Model != "" {
			reg.Alias(p.Model, name)
		}
	}

	if _, ok := reg.clients[cfg.Provider]; ok {
		reg.SetFallback(cfg.Provider)
	}
	return reg
}

func newProviderClient(name string, p config.ProviderEntry, timeout time.Duration) Client {
	switch name {
	case "groq", "openai":
		if p.APIKey == "" || p.Model == "" {
			return nil
		}
		return NewGroqClient(p.APIKey, p.Model, p.Endpoint, timeout)
	case "claude":
		if p.APIKey == "" || p.Model == "" {
			return nil
		}
		return NewClaudeAPIClient(p.APIKey, p.Model, p.Endpoint, timeout)
	case "gemini":
		if p.APIKey == "" {
			return nil
		}
		return NewGeminiClient(p.APIKey, p.Model, timeout)
	case "ollama":
		if p.Model == "" {
			return nil
		}
		return NewOllamaAPIClient(p.Endpoint, p.Model, timeout)
	default:
		return nil
	}
}

package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultDiscussionWindow is how many trailing transcript characters a
// prompt may quote.
const DefaultDiscussionWindow = 50000

// DefaultGatewayPort is the gateway's listen port when none is configured.
const DefaultGatewayPort = 18790

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		LLM: LLMConfig{
			Provider:       "groq",
			TimeoutSeconds: 120,
			Providers: map[string]ProviderEntry{
				"groq": {
					APIKey: "${GROQ_API_KEY}",
					Model:  "llama-3.3-70b-versatile",
				},
			},
		},
		Gateway: GatewayConfig{
			Port: DefaultGatewayPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Discussion: DiscussionConfig{
			Window: DefaultDiscussionWindow,
			Store:  "sqlite",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

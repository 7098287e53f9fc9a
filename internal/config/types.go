package config

// Config is the root configuration for agentdesk.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace,omitempty"`
	LLM        LLMConfig        `yaml:"llm,omitempty"`
	Gateway    GatewayConfig    `yaml:"gateway,omitempty"`
	Discussion DiscussionConfig `yaml:"discussion,omitempty"`
	Relay      RelayConfig      `yaml:"relay,omitempty"`
	Logging    LoggingConfig    `yaml:"logging,omitempty"`
}

// WorkspaceConfig locates the exportable artifact directories.
// Empty values fall back to the resolved Paths.
type WorkspaceConfig struct {
	AgentsDir    string `yaml:"agentsDir,omitempty"`
	WorkflowsDir string `yaml:"workflowsDir,omitempty"`
	Watch        bool   `yaml:"watch,omitempty"` // broadcast files.changed on directory edits
}

// LLMConfig selects the completion providers.
type LLMConfig struct {
	Provider       string                   `yaml:"provider,omitempty"` // primary provider name
	Fallbacks      []string                 `yaml:"fallbacks,omitempty"`
	MaxTokens      int                      `yaml:"maxTokens,omitempty"`
	Temperature    *float64                 `yaml:"temperature,omitempty"`
	TimeoutSeconds int                      `yaml:"timeoutSeconds,omitempty"`
	Providers      map[string]ProviderEntry `yaml:"providers,omitempty"`
}

// ProviderEntry configures a single provider.
type ProviderEntry struct {
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// DiscussionConfig controls the shared transcript.
type DiscussionConfig struct {
	Window int    `yaml:"window,omitempty"` // trailing characters quoted into prompts
	Store  string `yaml:"store,omitempty"`  // "sqlite" | "memory"
	DBPath string `yaml:"dbPath,omitempty"`
}

// RelayConfig configures optional outbound relays of discussion turns.
type RelayConfig struct {
	IRC *IRCConfig `yaml:"irc,omitempty"`
}

// IRCConfig defines IRC relay settings.
type IRCConfig struct {
	Server   string   `yaml:"server"`
	Port     int      `yaml:"port,omitempty"`
	Nick     string   `yaml:"nick"`
	Password string   `yaml:"password,omitempty"`
	Channels []string `yaml:"channels"`
	UseTLS   bool     `yaml:"useTLS,omitempty"`
	SASL     bool     `yaml:"sasl,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

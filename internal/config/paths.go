package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".agentdesk"

// Paths holds resolved filesystem paths for agentdesk data.
type Paths struct {
	Base      string // ~/.agentdesk
	Config    string // ~/.agentdesk/config.yaml
	Agents    string // ~/.agentdesk/agents
	Workflows string // ~/.agentdesk/workflows
	Data      string // ~/.agentdesk/data
	Logs      string // ~/.agentdesk/logs
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENTDESK_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENTDESK_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:      base,
		Config:    filepath.Join(base, "config.yaml"),
		Agents:    filepath.Join(base, "agents"),
		Workflows: filepath.Join(base, "workflows"),
		Data:      filepath.Join(base, "data"),
		Logs:      filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Agents, p.Workflows, p.Data, p.Logs}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// Apply resolves workspace and storage locations left empty in cfg
// against p.
func (p Paths) Apply(cfg *Config) {
	if cfg.Workspace.AgentsDir == "" {
		cfg.Workspace.AgentsDir = p.Agents
	}
	if cfg.Workspace.WorkflowsDir == "" {
		cfg.Workspace.WorkflowsDir = p.Workflows
	}
	if cfg.Discussion.DBPath == "" && cfg.Discussion.Store == "sqlite" {
		cfg.Discussion.DBPath = filepath.Join(p.Data, "agentdesk.db")
	}
}

// blockedKeys are keys that must never appear in config paths.
var blockedKeys = map[string]bool{
	"__proto__":   true,
	"prototype":   true,
	"constructor": true,
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if any segment is blocked or empty.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if blockedKeys[p] {
			return nil, &ConfigError{Message: "config path contains blocked key: " + p}
		}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes the value at path and any parent maps left
// empty by the removal. It reports whether a value was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 1 {
		if _, ok := root[path[0]]; !ok {
			return false
		}
		delete(root, path[0])
		return true
	}
	child, ok := root[path[0]].(map[string]any)
	if !ok || !UnsetValueAtPath(child, path[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(root, path[0])
	}
	return true
}

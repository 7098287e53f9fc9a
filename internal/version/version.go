// Package version carries build metadata injected by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/agentdesk/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/agentdesk/internal/version.Commit=abc123
//	  -X github.com/soyeahso/agentdesk/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build is the structured form of the build metadata, served by the
// gateway's health method.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Current returns the running binary's build metadata.
func Current() Build {
	return Build{Version: Version, Commit: short(Commit), Date: Date, Go: runtime.Version()}
}

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("agentdesk %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies agentdesk to remote services such as IRC servers.
func UserAgent() string {
	return "agentdesk/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

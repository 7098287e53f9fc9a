// Package relay posts discussion turns to IRC channels using the girc
// library. It is outbound only: nothing said in the channels reaches the
// desk.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lrstanley/girc"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/version"
)

// maxLineBytes keeps each PRIVMSG well inside the 512 byte IRC line limit.
const maxLineBytes = 400

// ErrNotConnected is returned when posting before the relay has joined.
var ErrNotConnected = errors.New("irc relay: not connected")

// Status reports the relay's runtime state.
type Status struct {
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	Channels  int    `json:"channels"`
	LastError string `json:"lastError,omitempty"`
}

// IRC relays appended discussion turns to the configured channels.
type IRC struct {
	cfg config.IRCConfig
	log *logging.Logger

	mu      sync.RWMutex
	client  *girc.Client
	send    func(target, line string) // set while connected
	running bool
	lastErr string
}

// NewIRC creates a relay from configuration. It does not connect.
func NewIRC(cfg config.IRCConfig, log *logging.Logger) *IRC {
	return &IRC{cfg: cfg, log: log.Sub("relay.irc")}
}

// ID implements Relay.
func (r *IRC) ID() string { return "irc" }

// gircConfig translates the relay settings into a girc configuration.
func gircConfig(cfg config.IRCConfig) girc.Config {
	port := cfg.Port
	if port == 0 {
		if cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gc := girc.Config{
		Server:  cfg.Server,
		Port:    port,
		Nick:    cfg.Nick,
		User:    cfg.Nick,
		Name:    "agentdesk relay",
		SSL:     cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if cfg.UseTLS {
		gc.TLSConfig = &tls.Config{ServerName: cfg.Server}
	}
	if cfg.SASL && cfg.Password != "" {
		gc.SASL = &girc.SASLPlain{User: cfg.Nick, Pass: cfg.Password}
	} else if cfg.Password != "" {
		gc.ServerPass = cfg.Password
	}
	return gc
}

// Start connects and blocks until the connection ends or ctx is cancelled.
func (r *IRC) Start(ctx context.Context) error {
	gc := gircConfig(r.cfg)
	client := girc.New(gc)
	client.Handlers.Add(girc.CONNECTED, r.onConnected)
	client.Handlers.Add(girc.DISCONNECTED, r.onDisconnected)

	r.mu.Lock()
	r.client = client
	r.running = true
	r.lastErr = ""
	r.mu.Unlock()

	r.log.Info().
		Str("server", gc.Server).
		Int("port", gc.Port).
		Str("nick", gc.Nick).
		Strs("channels", r.cfg.Channels).
		Bool("tls", gc.SSL).
		Msg("connecting to IRC")

	// Connect blocks until the connection closes.
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		r.mu.Lock()
		r.running = false
		r.send = nil
		if err != nil {
			r.lastErr = err.Error()
		}
		r.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		r.mu.Lock()
		r.running = false
		r.send = nil
		r.mu.Unlock()
		return ctx.Err()
	}
}

// Stop quits the server if connected and closes the client, which ends a
// pending Start.
func (r *IRC) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		if r.client.IsConnected() {
			r.log.Info().Msg("disconnecting from IRC")
			r.client.Quit("agentdesk shutting down")
		}
		r.client.Close()
	}
	r.send = nil
	r.running = false
}

// Status returns the current runtime status.
func (r *IRC) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Connected: r.send != nil,
		Running:   r.running,
		Channels:  len(r.cfg.Channels),
		LastError: r.lastErr,
	}
}

func (r *IRC) onConnected(c *girc.Client, _ girc.Event) {
	r.log.Info().Str("nick", c.GetNick()).Msg("connected to IRC")
	for _, ch := range r.cfg.Channels {
		c.Cmd.Join(ch)
		r.log.Debug().Str("channel", ch).Msg("joined channel")
	}
	r.mu.Lock()
	r.send = c.Cmd.Message
	r.mu.Unlock()
}

func (r *IRC) onDisconnected(_ *girc.Client, _ girc.Event) {
	r.log.Warn().Msg("disconnected from IRC")
	r.mu.Lock()
	r.send = nil
	r.mu.Unlock()
}

// PostTurn sends one discussion turn to every configured channel: a
// header line naming the agent followed by the response split into IRC
// sized lines.
func (r *IRC) PostTurn(expertName, response string) error {
	r.mu.RLock()
	send := r.send
	r.mu.RUnlock()
	if send == nil {
		return ErrNotConnected
	}

	lines := append([]string{expertName + ":"}, splitMessage(response, maxLineBytes)...)
	for _, ch := range r.cfg.Channels {
		for _, line := range lines {
			send(ch, line)
		}
	}
	r.log.Debug().Str("expert", expertName).Int("lines", len(lines)).Msg("turn relayed")
	return nil
}

// Hook returns a handler for hooks.EventDiscussionAppended that relays
// the appended turn.
func (r *IRC) Hook() hooks.Handler {
	return func(_ context.Context, p hooks.Payload) error {
		return r.PostTurn(p.Str("expertName"), p.Str("response"))
	}
}

// splitMessage breaks text into chunks suitable for IRC. Each input line
// becomes at least one chunk since PRIVMSG cannot carry newlines; blank
// lines are dropped. Lines longer than maxLen bytes are split on rune
// boundaries.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// Relay is an outbound sink for appended discussion turns.
type Relay interface {
	// ID names the relay, e.g. "irc". It is also the hook handler name.
	ID() string

	// Hook handles hooks.EventDiscussionAppended.
	Hook() hooks.Handler

	// Start connects and blocks until ctx is cancelled or the connection ends.
	Start(ctx context.Context) error

	Stop()
	Status() Status
}

// Manager owns the configured relays, subscribes them to the discussion
// and runs their connections.
type Manager struct {
	mu     sync.RWMutex
	relays map[string]Relay
	order  []string // registration order for deterministic lifecycle
	hooks  *hooks.Manager
	log    *logging.Logger
	wg     sync.WaitGroup
}

// NewManager creates an empty relay manager.
func NewManager(hm *hooks.Manager, log *logging.Logger) *Manager {
	return &Manager{
		relays: make(map[string]Relay),
		hooks:  hm,
		log:    log.Sub("relays"),
	}
}

// NewManagerFromConfig registers a relay for every section present in cfg.
func NewManagerFromConfig(cfg config.RelayConfig, hm *hooks.Manager, log *logging.Logger) *Manager {
	m := NewManager(hm, log)
	if cfg.IRC != nil {
		// A fresh manager cannot hold a duplicate.
		_ = m.Register(NewIRC(*cfg.IRC, log))
	}
	return m
}

// Register adds a relay and subscribes it to appended turns. It does not
// connect.
func (m *Manager) Register(r Relay) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.relays[r.ID()]; exists {
		return fmt.Errorf("relay already registered: %s", r.ID())
	}
	m.relays[r.ID()] = r
	m.order = append(m.order, r.ID())
	m.hooks.On(hooks.EventDiscussionAppended, "relay."+r.ID(), r.Hook())

	m.log.Info().Str("id", r.ID()).Msg("relay registered")
	return nil
}

// StartAll starts every relay in its own goroutine. A relay that fails is
// logged; the others keep running.
func (m *Manager) StartAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range m.order {
		r := m.relays[id]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := r.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.log.Error().Err(err).Str("id", id).Msg("relay stopped")
			}
		}()
	}
}

// StopAll unsubscribes and stops every relay in reverse registration order,
// then waits for their connections to end.
func (m *Manager) StopAll() {
	m.mu.RLock()
	for i := len(m.order) - 1; i >= 0; i-- {
		id := m.order[i]
		m.hooks.Off(hooks.EventDiscussionAppended, "relay."+id)
		m.log.Info().Str("id", id).Msg("stopping relay")
		m.relays[id].Stop()
	}
	m.mu.RUnlock()
	m.wg.Wait()
}

// Get returns a relay by ID, or nil.
func (m *Manager) Get(id string) Relay {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.relays[id]
}

// List returns the relay IDs in registration order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Count returns the number of registered relays.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.relays)
}

// Statuses reports each relay's status by ID.
func (m *Manager) Statuses() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.relays))
	for id, r := range m.relays {
		out[id] = r.Status()
	}
	return out
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/discussion"
	"github.com/soyeahso/agentdesk/internal/hooks"
	"github.com/soyeahso/agentdesk/internal/llm"
	"github.com/soyeahso/agentdesk/internal/store"
)

// app is the desk wired from configuration: agent files, the discussion
// and its store, the completion providers and the hook manager that ties
// them to the audit trail.
type app struct {
	cfg      config.Config
	hooks    *hooks.Manager
	db       *store.DB // nil with the memory store
	files    *store.AgentFiles
	disc     *discussion.Discussion
	desk     *agent.Desk
	registry *llm.Registry
}

// newCompleter builds the completion boundary. Tests replace it.
var newCompleter = func(cfg config.LLMConfig, registry *llm.Registry) agent.Completer {
	return agent.NewFailoverClient(registry, agent.FailoverConfig{
		Primary:     cfg.Provider,
		Fallbacks:   cfg.Fallbacks,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, log)
}

// loadConfig reads and validates the config file, filling workspace
// locations from paths.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	paths.Apply(&cfg)
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openApp wires the desk for cfg. The caller must Close it.
func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	a := &app{cfg: cfg, hooks: hooks.NewManager(log)}

	var turns store.TurnStore
	if cfg.Discussion.Store == "sqlite" {
		db, err := store.Open(cfg.Discussion.DBPath, log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.db = db
		turns = store.NewSQLiteTurnStore(db)
		a.recordAgentEvents()
	} else {
		turns = store.NewMemoryTurnStore()
	}

	a.disc = discussion.New(turns, a.hooks, log)
	if err := a.disc.Restore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.files = store.NewAgentFiles(cfg.Workspace.AgentsDir, log)
	a.registry = llm.NewRegistryFromConfig(cfg.LLM, log)
	interactor := agent.NewInteractor(
		newCompleter(cfg.LLM, a.registry),
		a.disc,
		a.disc,
		cfg.Discussion.Window,
		a.hooks,
		log,
	)
	a.desk = agent.NewDesk(a.files, interactor, a.hooks, log)
	if err := a.desk.Load(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// recordAgentEvents writes agent saves and deletes to the audit trail.
func (a *app) recordAgentEvents() {
	kinds := map[string]string{
		hooks.EventAgentSaved:   store.EventAgentSaved,
		hooks.EventAgentDeleted: store.EventAgentDeleted,
	}
	a.hooks.OnEach([]string{hooks.EventAgentSaved, hooks.EventAgentDeleted}, "audit",
		func(ctx context.Context, p hooks.Payload) error {
			return a.db.RecordAgentEvent(ctx, kinds[p.Event], p.Str("expertName"))
		})
}

// openDesk loads config and wires the app in one step.
func openDesk(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openApp(ctx, cfg)
}

// Close releases the database.
func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// agentIndex resolves an index argument or an expert name against the
// desk's agent list.
func (a *app) agentIndex(arg string) (int, error) {
	if idx, err := strconv.Atoi(arg); err == nil {
		return idx, nil
	}
	for i, rec := range a.desk.Snapshot().Agents {
		if rec.ExpertName == arg {
			return i, nil
		}
	}
	return agent.NoSelection, fmt.Errorf("%w: no agent named %q", errNoSuchAgent, arg)
}

var errNoSuchAgent = errors.New("agent not found")

package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/gateway"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/relay"
	"github.com/soyeahso/agentdesk/internal/store"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the desk gateway (HTTP + WebSocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			if logLevel == "" {
				l, closer, err := logging.NewFromConfig(cfg.Logging)
				if err != nil {
					return fmt.Errorf("opening log: %w", err)
				}
				defer closer.Close()
				log = l
			}

			paths.Apply(&cfg)
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if providers := a.registry.List(); len(providers) > 0 {
				log.Info().Strs("providers", providers).Str("primary", a.registry.Fallback()).Msg("LLM providers available")
			} else {
				log.Warn().Msg("no LLM provider configured, interactions will not append to the discussion")
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			opts := []gateway.ServerOption{
				gateway.WithConfigRaw(raw, paths.Config),
				gateway.WithHooks(a.hooks),
				gateway.WithWorkflowsDir(cfg.Workspace.WorkflowsDir),
			}
			if a.db != nil {
				opts = append(opts, gateway.WithEventLog(a.db))
			}

			relays := relay.NewManagerFromConfig(cfg.Relay, a.hooks, log)
			if relays.Count() > 0 {
				opts = append(opts, gateway.WithRelays(relays))
				relays.StartAll(ctx)
				defer relays.StopAll()
			}

			srv := gateway.New(cfg, a.desk, a.disc, a.files, log, opts...)

			if cfg.Workspace.Watch {
				w, err := store.NewDirWatcher(
					[]string{cfg.Workspace.AgentsDir, cfg.Workspace.WorkflowsDir}, 0, log)
				if err != nil {
					return fmt.Errorf("watching workspace: %w", err)
				}
				go w.Run(ctx, srv.NotifyFilesChanged)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	return cmd
}

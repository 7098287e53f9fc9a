package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentdesk/internal/llm"
	"github.com/soyeahso/agentdesk/internal/store"
	"github.com/soyeahso/agentdesk/internal/version"
)

func newStatusCmd() *cobra.Command {
	var events int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show paths, configuration summary and recent agent activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			headerColor.Fprintf(w, "agentdesk %s (commit %s)\n\n", version.Version, version.Commit)

			field(w, "Config", paths.Config)
			field(w, "Data", paths.Data)
			field(w, "Logs", paths.Logs)
			fmt.Fprintln(w)

			cfg, err := loadConfig()
			if err != nil {
				errorColor.Fprintf(w, "Config error: %v\n", err)
				return nil
			}

			field(w, "Agents", cfg.Workspace.AgentsDir)
			field(w, "Workflows", cfg.Workspace.WorkflowsDir)
			field(w, "Gateway", fmt.Sprintf("port=%d bind=%s auth=%s tls=%v",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.TLS.Enabled))
			field(w, "Discussion", fmt.Sprintf("store=%s window=%d", cfg.Discussion.Store, cfg.Discussion.Window))

			registry := llm.NewRegistryFromConfig(cfg.LLM, log)
			if providers := registry.List(); len(providers) > 0 {
				field(w, "LLM", fmt.Sprintf("%s (primary %s)", strings.Join(providers, ", "), cfg.LLM.Provider))
			} else {
				field(w, "LLM", warnColor.Sprint("no provider has credentials"))
			}

			if irc := cfg.Relay.IRC; irc != nil {
				field(w, "IRC relay", fmt.Sprintf("server=%s nick=%s channels=%s tls=%v",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS))
			} else {
				field(w, "IRC relay", dimColor.Sprint("(not configured)"))
			}

			if cfg.Discussion.Store != "sqlite" {
				return nil
			}
			db, err := store.Open(cfg.Discussion.DBPath, log)
			if err != nil {
				errorColor.Fprintf(w, "Database error: %v\n", err)
				return nil
			}
			defer db.Close()

			if v, err := db.SchemaVersion(); err == nil {
				field(w, "Schema", fmt.Sprintf("v%d", v))
			}
			recent, err := db.AgentEvents(cmd.Context(), events)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				return nil
			}
			fmt.Fprintln(w)
			headerColor.Fprintln(w, "Recent agent activity:")
			for _, e := range recent {
				dimColor.Fprintf(w, "  %s ", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
				fmt.Fprintf(w, "%-8s ", e.Kind)
				nameColor.Fprintln(w, e.ExpertName)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&events, "events", 10, "number of recent agent events to show")
	return cmd
}

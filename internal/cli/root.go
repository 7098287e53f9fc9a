// Package cli implements the agentdesk command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/logging"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentdesk",
		Short: "agentdesk: a desk of LLM expert personas sharing one discussion",
		Long: "agentdesk keeps a list of expert personas, sends each one the shared\n" +
			"discussion on request and appends its answer for the next expert to read.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			level := logLevel
			if level == "" {
				level = "warn"
			}
			log = logging.New(nil, level)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agentdesk/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newFilesCmd())
	cmd.AddCommand(newDiscussionCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	cmd := newRootCmd()
	err := cmd.Execute()
	if err != nil {
		errorColor.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	return err
}

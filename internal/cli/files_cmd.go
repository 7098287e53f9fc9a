package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentdesk/internal/store"
)

func newFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Inspect exportable agent and workflow files",
	}
	cmd.AddCommand(newFilesListCmd())
	return cmd
}

func newFilesListCmd() *cobra.Command {
	var showURL bool

	cmd := &cobra.Command{
		Use:       "list [agents|workflows]",
		Short:     "List downloadable files",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"agents", "workflows"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			kind := "agents"
			if len(args) == 1 {
				kind = args[0]
			}
			dir := cfg.Workspace.AgentsDir
			if kind == "workflows" {
				dir = cfg.Workspace.WorkflowsDir
			}

			files, err := store.ListExportableFiles(dir)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(files) == 0 {
				dimColor.Fprintf(w, "No %s files in %s\n", kind, dir)
				return nil
			}
			headerColor.Fprintf(w, "%-40s %10s\n", "NAME", "SIZE")
			for _, f := range files {
				nameColor.Fprintf(w, "%-40s", f.Name)
				fmt.Fprintf(w, " %10s\n", humanSize(f.Size))
				if showURL {
					dimColor.Fprintf(w, "  %s\n", f.DataURL)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showURL, "data-url", false, "also print each file's data: URL")
	return cmd
}

package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/agentdesk/internal/agent"
	"github.com/soyeahso/agentdesk/internal/store"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage expert agents",
	}

	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentAddCmd())
	cmd.AddCommand(newAgentUpdateCmd())
	cmd.AddCommand(newAgentDeleteCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentExportCmd())
	cmd.AddCommand(newAgentInteractCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List agents in desk order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			agents := a.desk.Snapshot().Agents
			if len(agents) == 0 {
				dimColor.Fprintf(w, "No agents in %s\n", a.files.Dir())
				return nil
			}
			headerColor.Fprintf(w, "%-5s %-24s %s\n", "#", "EXPERT", "DESCRIPTION")
			for i, rec := range agents {
				fmt.Fprintf(w, "%-5d ", i)
				nameColor.Fprintf(w, "%-24s", truncate(rec.ExpertName, 24))
				fmt.Fprintf(w, " %s\n", truncate(rec.Description, 60))
			}
			return nil
		},
	}
}

func newAgentAddCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <expert-name>",
		Short: "Add an agent and write its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			at, err := a.desk.AddOrUpdate(cmd.Context(), nil, args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added #%d %s\n", at, nameColor.Sprint(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "what the expert does")
	return cmd
}

func newAgentUpdateCmd() *cobra.Command {
	var (
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "update <index|expert-name>",
		Short: "Replace an agent's name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.agentIndex(args[0])
			if err != nil {
				return err
			}
			agents := a.desk.Snapshot().Agents
			if idx < 0 || idx >= len(agents) {
				return fmt.Errorf("%w: %d", agent.ErrIndexOutOfRange, idx)
			}
			rec := agents[idx]
			if cmd.Flags().Changed("name") {
				rec.ExpertName = name
			}
			if cmd.Flags().Changed("description") {
				rec.Description = description
			}

			if _, err := a.desk.AddOrUpdate(cmd.Context(), &idx, rec.ExpertName, rec.Description); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated #%d %s\n", idx, nameColor.Sprint(rec.ExpertName))
			if rec.ExpertName != agents[idx].ExpertName {
				warnColor.Fprintf(cmd.OutOrStdout(), "Renamed: %s.json is left in place\n", agents[idx].ExpertName)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "new expert name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	return cmd
}

func newAgentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index>",
		Short: "Delete an agent and its file",
		Long:  "Delete the agent at index. An index outside the list is ignored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			before := len(a.desk.Snapshot().Agents)
			if err := a.desk.Delete(cmd.Context(), idx); err != nil {
				return err
			}
			if len(a.desk.Snapshot().Agents) == before {
				dimColor.Fprintf(cmd.OutOrStdout(), "No agent at #%d\n", idx)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", idx)
			return nil
		},
	}
}

func newAgentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <index|expert-name>",
		Short: "Show an agent's record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.agentIndex(args[0])
			if err != nil {
				return err
			}
			agents := a.desk.Snapshot().Agents
			if idx < 0 || idx >= len(agents) {
				return fmt.Errorf("%w: %d", agent.ErrIndexOutOfRange, idx)
			}
			rec := agents[idx]

			w := cmd.OutOrStdout()
			field(w, "Index", idx)
			field(w, "Expert", nameColor.Sprint(rec.ExpertName))
			field(w, "File", filepath.Join(a.files.Dir(), rec.ExpertName+".json"))
			field(w, "About", rec.Description)
			return nil
		},
	}
}

func newAgentExportCmd() *cobra.Command {
	var (
		outDir  string
		dataURL bool
	)

	cmd := &cobra.Command{
		Use:   "export <expert-name>",
		Short: "Export an agent file under its download name",
		Long: "Export reads the agent file named after the normalized expert name\n" +
			"(lowercase, punctuation dropped, spaces as underscores) and writes it to --out.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			files := store.NewAgentFiles(cfg.Workspace.AgentsDir, log)
			f, err := files.Export(args[0])
			if err != nil {
				return err
			}
			if dataURL {
				fmt.Fprintln(cmd.OutOrStdout(), f.DataURL)
				return nil
			}

			data, err := base64.StdEncoding.DecodeString(f.Base64)
			if err != nil {
				return err
			}
			dest := filepath.Join(outDir, f.Name)
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s (%s)\n", dest, humanSize(f.Size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write the export to")
	cmd.Flags().BoolVar(&dataURL, "data-url", false, "print a data: URL instead of writing a file")
	return cmd
}

func newAgentInteractCmd() *cobra.Command {
	var (
		ic      agent.InteractContext
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "interact <index|expert-name>",
		Short: "Select an agent and send it the discussion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.agentIndex(args[0])
			if err != nil {
				return err
			}

			a.desk.SetContext(ic)
			result, err := a.desk.Select(cmd.Context(), idx)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if verbose {
				dimColor.Fprintf(w, "%s\n\n", result.Prompt)
			}
			switch {
			case result.Error != "":
				warnColor.Fprintf(w, "%s did not answer: %s\n", result.ExpertName, result.Error)
			case !result.Appended:
				warnColor.Fprintf(w, "%s returned an empty response\n", result.ExpertName)
			default:
				nameColor.Fprintf(w, "%s:\n\n", result.ExpertName)
				fmt.Fprintf(w, "%s\n", result.Response)
				dimColor.Fprintf(w, "\n(%s)\n", result.Duration.Round(time.Millisecond))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&ic.UserRequest, "request", "r", "", "the original user request")
	cmd.Flags().StringVarP(&ic.UserInput, "input", "i", "", "additional input for this turn")
	cmd.Flags().StringVar(&ic.RephrasedRequest, "rephrased", "", "the request as rephrased for the team")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the prompt sent")
	return cmd
}

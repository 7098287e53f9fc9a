package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscussionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discussion",
		Short: "Read, search or reset the shared discussion",
	}
	cmd.AddCommand(newDiscussionShowCmd())
	cmd.AddCommand(newDiscussionSearchCmd())
	cmd.AddCommand(newDiscussionResetCmd())
	return cmd
}

func newDiscussionShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the discussion transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			switch format {
			case "text":
				fmt.Fprint(w, a.disc.Text())
			case "markdown":
				fmt.Fprint(w, a.disc.Markdown())
			case "html":
				html, err := a.disc.RenderHTML()
				if err != nil {
					return err
				}
				fmt.Fprint(w, html)
			case "whiteboard":
				fmt.Fprintln(w, a.disc.Whiteboard())
			default:
				return fmt.Errorf("unknown format %q (text, markdown, html, whiteboard)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text, markdown, html or whiteboard")
	return cmd
}

func newDiscussionSearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search past turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			turns, err := a.disc.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if len(turns) == 0 {
				dimColor.Fprintln(w, "No matching turns")
				return nil
			}
			for _, t := range turns {
				dimColor.Fprintf(w, "%s ", t.CreatedAt.Local().Format("2006-01-02 15:04"))
				nameColor.Fprintf(w, "%s", t.ExpertName)
				fmt.Fprintf(w, ": %s\n", truncate(t.Response, 100))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of turns")
	return cmd
}

func newDiscussionResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the discussion and its stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			a, err := openDesk(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.disc.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Discussion cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}

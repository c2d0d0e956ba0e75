package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func newCheckpointsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Show the most recent checkpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return withApp(cmd, func(a App, _ *env) error {
				history, err := a.Checkpoints().History(cmd.Context(), limit, offset)
				if err != nil {
					return fmt.Errorf("load checkpoints: %w", err)
				}
				if len(history) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints recorded yet.")
					return nil
				}
				printCheckpoints(cmd.OutOrStdout(), history)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of checkpoints to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of checkpoints to skip")
	return cmd
}

func printCheckpoints(w io.Writer, history []crawler.Checkpoint) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Index", "Page", "Outcome", "Error", "Reason", "Created"})
	for _, cp := range history {
		t.AppendRow(table.Row{
			cp.ID,
			cp.SequenceIndex,
			cp.Page,
			cp.Outcome,
			cp.Error,
			truncate(cp.Reason, 60),
			cp.CreatedAt.Format(time.RFC3339),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(history)})
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Perform a single crawl run and exit",
		Long: `Fetches one results page from the position recorded in the checkpoint
log, stores new listings and appends the next checkpoint. Exits non-zero when
the run failed. A run skipped because another holds the lock exits zero.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App, e *env) error {
				result := a.RunOnce(cmd.Context())
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					e.logger.Warn("failed to print run result", zap.Error(err))
				}
				if result.Status == crawler.RunFailed {
					return errRunFailed
				}
				return nil
			})
		},
	}
}

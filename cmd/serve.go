package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP API",
		Long: `Starts the HTTP API and triggers a crawl run on the configured cron
schedule until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a App, _ *env) error {
				return a.Serve(cmd.Context())
			})
		},
	}
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/listing-crawler/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	var down int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply (or roll back) the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			if e.cfg.DB.DSN == "" {
				return errors.New("db.dsn is required for migrate")
			}
			pool, err := postgres.NewPool(cmd.Context(), postgres.Config{
				DSN:             e.cfg.DB.DSN,
				MaxConns:        e.cfg.DB.MaxConns,
				MinConns:        e.cfg.DB.MinConns,
				MaxConnLifetime: e.cfg.DB.MaxConnLifetime,
			})
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			if down > 0 {
				return postgres.MigrateDown(pool, down, e.logger)
			}
			return postgres.Migrate(pool, e.logger)
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead of applying")
	return cmd
}

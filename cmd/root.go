// Package cmd defines the CLI commands for the listing-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/app"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what PersistentPreRunE hands to subcommands.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

// App defines the application surface commands use, so tests can inject a
// fake.
type App interface {
	RunOnce(ctx context.Context) crawler.RunResult
	Serve(ctx context.Context) error
	Checkpoints() crawler.CheckpointStore
	Close(ctx context.Context)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

// loadConfig is replaced in tests to skip files and the environment.
var loadConfig = config.Load

// errRunFailed makes `run` exit non-zero without printing a usage message.
var errRunFailed = errors.New("crawl run failed")

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "listing-crawler",
		Short: "Resumable crawler for paginated real-estate listings.",
		Long: `listing-crawler walks a fixed sequence of search URLs one results page
per run. Every run appends a checkpoint, so a crash or restart resumes exactly
where the last run stopped, and each new listing is stored once.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: &cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newMigrateCmd(),
		newCheckpointsCmd(),
	)
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// withApp builds the application, runs fn and closes it.
func withApp(cmd *cobra.Command, fn func(a App, e *env) error) error {
	e, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))
	return fn(a, e)
}

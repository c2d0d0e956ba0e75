// Package scheduler triggers crawl runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// DefaultSpec runs a crawl step every five minutes.
const DefaultSpec = "*/5 * * * *"

// Runner performs one crawl step. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context) crawler.RunResult
}

// Config controls the schedule.
type Config struct {
	Spec string
	// RunTimeout bounds each triggered run. Zero leaves runs unbounded.
	RunTimeout time.Duration
}

// Scheduler owns a cron instance with a single crawl entry.
type Scheduler struct {
	runner Runner
	cfg    Config
	cron   *cron.Cron
	logger *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the schedule and builds a stopped Scheduler.
func New(runner Runner, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Spec, err)
	}
	cronLogger := zapCronLogger{logger: logger.Sugar()}
	s := &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule crawl: %w", err)
	}
	return s, nil
}

// Start begins firing runs. Runs in flight are canceled when ctx is done or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.logger.Info("scheduler started", zap.String("spec", s.cfg.Spec))
	s.cron.Start()
}

// Stop halts the schedule, cancels the active run, and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for active run: %w", ctx.Err())
	}
}

// Next reports when the next run fires. It is zero until Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	if base == nil {
		base = context.Background()
	}
	if base.Err() != nil {
		return
	}

	ctx := base
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, s.cfg.RunTimeout)
		defer cancel()
	}
	result := s.runner.Run(ctx)
	if result.Status == crawler.RunFailed {
		s.logger.Warn("scheduled run failed", zap.String("run_id", result.RunID), zap.String("reason", result.Reason))
	}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

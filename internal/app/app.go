// Package app builds the crawler's dependency graph from configuration and
// owns the lifecycle of the long-lived clients it creates.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/api"
	"github.com/JakeFAU/listing-crawler/internal/clock/system"
	"github.com/JakeFAU/listing-crawler/internal/config"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/listing-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/listing-crawler/internal/id/uuid"
	"github.com/JakeFAU/listing-crawler/internal/lock"
	redislock "github.com/JakeFAU/listing-crawler/internal/lock/redis"
	"github.com/JakeFAU/listing-crawler/internal/orchestrator"
	"github.com/JakeFAU/listing-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/listing-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/listing-crawler/internal/scheduler"
	"github.com/JakeFAU/listing-crawler/internal/sequence"
	"github.com/JakeFAU/listing-crawler/internal/source"
	gcsstorage "github.com/JakeFAU/listing-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/listing-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/listing-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/listing-crawler/internal/storage/postgres"
	"github.com/JakeFAU/listing-crawler/internal/telemetry"
)

// Version is reported in traces. It is overridden at link time.
var Version = "dev"

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	orchestrator *orchestrator.Orchestrator
	checkpoints  crawler.CheckpointStore
	listings     crawler.ListingRepository

	pool           *pgxpool.Pool
	redis          *goredis.Client
	storage        *storage.Client
	pubsubClient   *pubsub.Client
	publisher      *gcppublisher.Publisher
	headless       *headlessfetcher.Fetcher
	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies. On error, everything built so
// far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	app.tracerShutdown, err = telemetry.InitTracing(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		ProjectID:   cfg.Telemetry.ProjectID,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	if err = app.setupDatabase(ctx); err != nil {
		return nil, err
	}
	runLock, err := app.setupLock(ctx)
	if err != nil {
		return nil, err
	}
	blobs, err := app.setupSnapshots(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}
	pageSource, err := app.setupSource(blobs)
	if err != nil {
		return nil, err
	}

	gen, err := sequence.New(cfg.Sequence)
	if err != nil {
		return nil, fmt.Errorf("sequence init failed: %w", err)
	}
	urls, err := gen.Generate(cfg.SequenceParams())
	if err != nil {
		return nil, fmt.Errorf("generate url sequence: %w", err)
	}
	app.logger.Info("url sequence ready",
		zap.Int("urls", len(urls)),
		zap.String("fingerprint", sequence.Fingerprint(urls)),
		zap.Bool("sort", cfg.Crawl.Sort),
		zap.Bool("agent_filter", cfg.Crawl.AgentFilter),
	)

	var orchPublisher crawler.Publisher
	if publisher != nil {
		orchPublisher = publisher
	}
	app.orchestrator, err = orchestrator.New(
		urls,
		app.checkpoints,
		app.listings,
		pageSource,
		runLock,
		orchPublisher,
		system.New(),
		uuid.New(),
		orchestrator.Config{Topic: cfg.PubSub.TopicName},
		app.logger,
	)
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	return app, nil
}

// RunOnce performs a single crawl step bounded by the configured run timeout.
func (a *App) RunOnce(ctx context.Context) crawler.RunResult {
	if a.cfg.Crawl.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Crawl.RunTimeout)
		defer cancel()
	}
	return a.orchestrator.Run(ctx)
}

// Checkpoints exposes the progress log.
func (a *App) Checkpoints() crawler.CheckpointStore {
	return a.checkpoints
}

// Handler builds the HTTP API.
func (a *App) Handler() http.Handler {
	apiKey := ""
	if a.cfg.Auth.Enabled {
		apiKey = a.cfg.Auth.APIKey
	}
	deps := api.Deps{
		Listings:    a.listings,
		Checkpoints: a.checkpoints,
		Runner:      a.orchestrator,
		Clock:       system.New(),
	}
	if a.pool != nil {
		deps.Ready = a.pool.Ping
	}
	return api.NewServer(deps, api.Options{
		APIKey:         apiKey,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		RunTimeout:     a.cfg.Crawl.RunTimeout,
	}, a.logger).Handler()
}

// Serve runs the scheduler and the HTTP API until ctx is canceled or a
// termination signal arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(a.orchestrator, scheduler.Config{
		Spec:       a.cfg.Crawl.Schedule,
		RunTimeout: a.cfg.Crawl.RunTimeout,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	sched.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler stop error", zap.Error(err))
	}
	return nil
}

// Close releases every client the App created. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	a.logger.Info("shutdown complete")
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping listings and checkpoints in memory")
		a.checkpoints = memorystorage.NewCheckpointStore()
		a.listings = memorystorage.NewListingStore()
		return nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}
	a.pool = pool
	if a.cfg.DB.Migrate {
		if err := pgstore.Migrate(pool, a.logger); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
	}
	if a.checkpoints, err = pgstore.NewCheckpointStore(pool, "checkpoints"); err != nil {
		return fmt.Errorf("checkpoint store init failed: %w", err)
	}
	if a.listings, err = pgstore.NewListingStore(pool, "listings"); err != nil {
		return fmt.Errorf("listing store init failed: %w", err)
	}
	a.logger.Info("postgres stores initialized")
	return nil
}

func (a *App) setupLock(ctx context.Context) (crawler.RunLock, error) {
	if a.cfg.Lock.Backend != config.BackendRedis {
		a.logger.Info("using in-process run lock")
		return lock.NewLocal(), nil
	}
	a.redis = goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	a.logger.Info("using redis run lock", zap.String("addr", a.cfg.Lock.RedisAddr))
	return redislock.New(a.redis, redislock.Config{
		Key: a.cfg.Lock.Key,
		TTL: a.cfg.Lock.TTL,
	}, a.logger), nil
}

func (a *App) setupSnapshots(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("storing page snapshots in GCS", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case config.BackendLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("storing page snapshots on disk", zap.String("path", a.cfg.Storage.BaseDir))
		return blobs, nil
	case config.BackendMemory:
		a.logger.Info("storing page snapshots in memory")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Debug("page snapshots disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (*gcppublisher.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, new-listing notifications disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupSource(blobs crawler.BlobStore) (crawler.PageSource, error) {
	src := a.cfg.Source
	var cookies []*http.Cookie
	if src.CookieName != "" {
		cookies = append(cookies, &http.Cookie{Name: src.CookieName, Value: src.CookieValue})
	}

	var renderer crawler.Renderer
	switch src.Driver {
	case config.DriverHTTP:
		fetcher, err := collyfetcher.New(collyfetcher.Config{
			UserAgent:     src.UserAgent,
			RespectRobots: src.RespectRobots,
			Timeout:       src.Timeout,
			CookieURL:     src.CookieURL,
			Cookies:       cookies,
		})
		if err != nil {
			return nil, fmt.Errorf("http renderer init failed: %w", err)
		}
		renderer = fetcher
		a.logger.Info("using colly renderer", zap.String("user_agent", src.UserAgent))
	default:
		fetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       src.MaxParallel,
			UserAgent:         src.UserAgent,
			NavigationTimeout: src.NavTimeout,
			SettleDelay:       src.SettleDelay,
			RemoteURL:         src.RemoteURL,
			DisableImages:     src.DisableImages,
			CookieURL:         src.CookieURL,
			Cookies:           cookies,
		})
		if err != nil {
			return nil, fmt.Errorf("headless renderer init failed: %w", err)
		}
		a.headless = fetcher
		renderer = fetcher
		a.logger.Info("using headless renderer",
			zap.Int("max_parallel", src.MaxParallel),
			zap.Bool("remote", src.RemoteURL != ""),
		)
	}

	opts := []source.Option{
		source.WithLimiter(ratelimit.New(ratelimit.Config{MinInterval: src.MinInterval})),
	}
	if blobs != nil {
		opts = append(opts, source.WithSnapshots(blobs, sha256.New()))
	}
	return source.New(renderer, extract.New(a.cfg.Extract), source.Config{
		Timeout:        src.Timeout,
		SnapshotPrefix: a.cfg.Storage.Prefix,
	}, a.logger, opts...)
}

// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/listing-crawler/internal/extract"
	"github.com/JakeFAU/listing-crawler/internal/sequence"
)

// EnvPrefix namespaces environment overrides, e.g. LISTINGS_DB_DSN.
const EnvPrefix = "LISTINGS"

// Source drivers.
const (
	DriverHeadless = "headless"
	DriverHTTP     = "http"
)

// Backend names shared by the lock and snapshot settings.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendRedis  = "redis"
	BackendGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Telemetry TelemetryConfig   `mapstructure:"telemetry"`
	Crawl     CrawlConfig       `mapstructure:"crawl"`
	Sequence  sequence.Config   `mapstructure:"sequence"`
	Source    SourceConfig      `mapstructure:"source"`
	Extract   extract.Selectors `mapstructure:"extract"`
	DB        DBConfig          `mapstructure:"db"`
	Lock      LockConfig        `mapstructure:"lock"`
	Storage   StorageConfig     `mapstructure:"storage"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig enables trace export to Cloud Trace when ProjectID is set.
type TelemetryConfig struct {
	ProjectID   string  `mapstructure:"project_id"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// CrawlConfig selects the URL sequence variant and run cadence.
type CrawlConfig struct {
	Sort        bool          `mapstructure:"sort"`
	AgentFilter bool          `mapstructure:"agent_filter"`
	Schedule    string        `mapstructure:"schedule"`
	RunTimeout  time.Duration `mapstructure:"run_timeout"`
}

// SourceConfig configures page rendering.
type SourceConfig struct {
	Driver        string        `mapstructure:"driver"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	NavTimeout    time.Duration `mapstructure:"nav_timeout"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	RemoteURL     string        `mapstructure:"remote_url"`
	MaxParallel   int           `mapstructure:"max_parallel"`
	DisableImages bool          `mapstructure:"disable_images"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	CookieURL     string        `mapstructure:"cookie_url"`
	CookieName    string        `mapstructure:"cookie_name"`
	CookieValue   string        `mapstructure:"cookie_value"`
}

// DBConfig controls access to Postgres. An empty DSN keeps all state in memory.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// LockConfig selects the run lock.
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Key           string        `mapstructure:"key"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// StorageConfig sets where raw page snapshots go.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for new-listing notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from an optional .env file, an optional config file,
// and LISTINGS_* environment variables, in increasing precedence.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "listing-crawler")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("crawl.sort", true)
	v.SetDefault("crawl.agent_filter", false)
	v.SetDefault("crawl.schedule", "*/5 * * * *")
	v.SetDefault("crawl.run_timeout", 4*time.Minute)
	v.SetDefault("sequence.base_url", "https://www.avito.ru/moskva/kvartiry/prodam")
	v.SetDefault("sequence.sort_param", "s=104")
	v.SetDefault("sequence.private_param", "user=1")
	v.SetDefault("source.driver", DriverHeadless)
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("source.timeout", 90*time.Second)
	v.SetDefault("source.nav_timeout", 60*time.Second)
	v.SetDefault("source.settle_delay", 2*time.Second)
	v.SetDefault("source.max_parallel", 1)
	v.SetDefault("source.disable_images", true)
	v.SetDefault("source.min_interval", 10*time.Second)
	v.SetDefault("source.cookie_url", "https://www.avito.ru")
	v.SetDefault("source.cookie_name", "view")
	v.SetDefault("source.cookie_value", "gallery")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("lock.backend", BackendLocal)
	v.SetDefault("lock.key", "listing-crawler:run-lock")
	v.SetDefault("lock.ttl", 5*time.Minute)
	v.SetDefault("storage.backend", BackendNone)
	v.SetDefault("storage.prefix", "pages")

	// Keys without a default are invisible to Unmarshal unless bound.
	for _, key := range []string{
		"auth.enabled", "auth.api_key",
		"telemetry.project_id",
		"source.remote_url", "source.respect_robots",
		"db.dsn", "db.min_conns", "db.max_conn_lifetime",
		"lock.redis_addr", "lock.redis_password", "lock.redis_db",
		"storage.bucket", "storage.base_dir",
		"pubsub.project_id", "pubsub.topic_name",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Sequence.BaseURL == "" {
		return fmt.Errorf("sequence.base_url is required")
	}
	if c.Crawl.RunTimeout < 0 {
		return fmt.Errorf("crawl.run_timeout must be >= 0")
	}
	switch c.Source.Driver {
	case DriverHeadless:
		if c.Source.MaxParallel <= 0 {
			return fmt.Errorf("source.max_parallel must be > 0 for the headless driver")
		}
	case DriverHTTP:
	default:
		return fmt.Errorf("source.driver must be %q or %q, got %q", DriverHeadless, DriverHTTP, c.Source.Driver)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be > 0")
	}
	if c.Source.MinInterval < 0 {
		return fmt.Errorf("source.min_interval must be >= 0")
	}
	switch c.Lock.Backend {
	case BackendLocal:
	case BackendRedis:
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis lock")
		}
	default:
		return fmt.Errorf("lock.backend must be %q or %q, got %q", BackendLocal, BackendRedis, c.Lock.Backend)
	}
	switch c.Storage.Backend {
	case BackendNone, BackendMemory:
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for local snapshots")
		}
	case BackendGCS:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for gcs snapshots")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic_name is set")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// SequenceParams returns the sequence variant selected by the crawl settings.
func (c Config) SequenceParams() sequence.Params {
	return sequence.Params{Sort: c.Crawl.Sort, AgentFilter: c.Crawl.AgentFilter}
}

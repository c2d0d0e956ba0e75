package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/listing-crawler/internal/sequence"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawl:
  sort: false
  agent_filter: true
  schedule: "*/10 * * * *"
  run_timeout: 2m
sequence:
  base_url: https://example.com/moskva/kvartiry
  segments: ["studii", "1-komnatnye"]
  price_bands:
    - {min: 1, max: 5000000}
    - {min: 5000001}
source:
  driver: http
  timeout: 30s
  min_interval: 3s
extract:
  card: div.item
db:
  dsn: postgres://crawler@localhost/listings
  max_conns: 8
lock:
  backend: redis
  redis_addr: localhost:6379
storage:
  backend: local
  base_dir: /tmp/pages
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if got := cfg.SequenceParams(); got.Sort || !got.AgentFilter {
		t.Fatalf("expected crawl params to be overridden, got %+v", got)
	}
	if cfg.Crawl.RunTimeout != 2*time.Minute || cfg.Crawl.Schedule != "*/10 * * * *" {
		t.Fatalf("unexpected crawl config: %+v", cfg.Crawl)
	}
	if len(cfg.Sequence.Segments) != 2 || len(cfg.Sequence.PriceBands) != 2 {
		t.Fatalf("expected sequence lists to load: %+v", cfg.Sequence)
	}
	if cfg.Sequence.PriceBands[0].Max != 5000000 || cfg.Sequence.PriceBands[1].Max != 0 {
		t.Fatalf("unexpected price bands: %+v", cfg.Sequence.PriceBands)
	}
	if cfg.Sequence.SortParam != "s=104" {
		t.Fatalf("expected default sort param to survive, got %q", cfg.Sequence.SortParam)
	}
	if cfg.Source.Driver != DriverHTTP || cfg.Source.Timeout != 30*time.Second || cfg.Source.MinInterval != 3*time.Second {
		t.Fatalf("unexpected source config: %+v", cfg.Source)
	}
	if cfg.Extract.Card != "div.item" {
		t.Fatalf("expected card selector override, got %q", cfg.Extract.Card)
	}
	if cfg.DB.MaxConns != 8 || !cfg.DB.Migrate {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.Lock.Backend != BackendRedis || cfg.Storage.BaseDir != "/tmp/pages" {
		t.Fatalf("unexpected lock/storage config: %+v %+v", cfg.Lock, cfg.Storage)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.Schedule != "*/5 * * * *" || !cfg.Crawl.Sort || cfg.Crawl.AgentFilter {
		t.Fatalf("unexpected crawl defaults: %+v", cfg.Crawl)
	}
	if cfg.Source.Driver != DriverHeadless || cfg.Source.CookieName != "view" || cfg.Source.CookieValue != "gallery" {
		t.Fatalf("unexpected source defaults: %+v", cfg.Source)
	}
	if cfg.Lock.Backend != BackendLocal || cfg.Storage.Backend != BackendNone {
		t.Fatalf("unexpected backend defaults: %+v %+v", cfg.Lock, cfg.Storage)
	}
	if cfg.DB.DSN != "" {
		t.Fatalf("expected empty dsn by default")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTINGS_DB_DSN", "postgres://env@localhost/listings")
	t.Setenv("LISTINGS_SOURCE_DRIVER", "http")
	t.Setenv("LISTINGS_PUBSUB_PROJECT_ID", "proj")
	t.Setenv("LISTINGS_PUBSUB_TOPIC_NAME", "new-listings")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DB.DSN != "postgres://env@localhost/listings" {
		t.Fatalf("expected dsn from env, got %q", cfg.DB.DSN)
	}
	if cfg.Source.Driver != DriverHTTP {
		t.Fatalf("expected driver from env, got %q", cfg.Source.Driver)
	}
	if cfg.PubSub.TopicName != "new-listings" || cfg.PubSub.ProjectID != "proj" {
		t.Fatalf("expected pubsub from env, got %+v", cfg.PubSub)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:   ServerConfig{Port: 8080},
		Sequence: validSequence(),
		Source:   SourceConfig{Driver: DriverHTTP, Timeout: time.Second},
		Lock:     LockConfig{Backend: BackendLocal},
		Storage:  StorageConfig{Backend: BackendNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "missing base url", mutate: func(c *Config) { c.Sequence.BaseURL = "" }, want: "sequence.base_url"},
		{name: "unknown driver", mutate: func(c *Config) { c.Source.Driver = "selenium" }, want: "source.driver"},
		{name: "headless parallelism", mutate: func(c *Config) { c.Source.Driver = DriverHeadless }, want: "source.max_parallel"},
		{name: "zero timeout", mutate: func(c *Config) { c.Source.Timeout = 0 }, want: "source.timeout"},
		{name: "redis without addr", mutate: func(c *Config) { c.Lock.Backend = BackendRedis }, want: "lock.redis_addr"},
		{name: "unknown lock", mutate: func(c *Config) { c.Lock.Backend = "etcd" }, want: "lock.backend"},
		{name: "local without dir", mutate: func(c *Config) { c.Storage.Backend = BackendLocal }, want: "storage.base_dir"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.Backend = BackendGCS }, want: "storage.bucket"},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 2 }, want: "telemetry.sample_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func validSequence() sequence.Config {
	return sequence.Config{BaseURL: "https://example.com/kvartiry"}
}

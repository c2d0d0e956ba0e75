// Package redis implements crawler.RunLock with a Redis key so that only one
// replica runs a crawl step at a time.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

const (
	// DefaultKey is the Redis key guarding crawl runs.
	DefaultKey = "listing-crawler:run-lock"
	// DefaultTTL bounds how long a crashed holder blocks other replicas.
	DefaultTTL = 2 * time.Minute

	releaseTimeout = 5 * time.Second
)

var (
	unlockScript = goredis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = goredis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// errNotHeld means the key expired or was taken over before release.
var errNotHeld = errors.New("lock not held")

// Config controls the lock.
type Config struct {
	Key string
	TTL time.Duration
	// RefreshInterval extends the TTL while the lock is held. Zero uses TTL/3;
	// a negative value disables refreshing.
	RefreshInterval time.Duration
}

// Lock is a token-based Redis lock. Each acquisition gets a fresh token so a
// stale release never deletes another holder's key.
type Lock struct {
	client  goredis.UniversalClient
	cfg     Config
	logger  *zap.Logger
	tokenFn func() string
}

// New builds a Lock on client.
func New(client goredis.UniversalClient, cfg Config, logger *zap.Logger) *Lock {
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = cfg.TTL / 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lock{
		client:  client,
		cfg:     cfg,
		logger:  logger.Named("run_lock").With(zap.String("key", cfg.Key)),
		tokenFn: func() string { return uuid.NewString() },
	}
}

// TryAcquire sets the key if absent. It returns crawler.ErrLockHeld when
// another holder owns it.
func (l *Lock) TryAcquire(ctx context.Context) (func(), error) {
	token := l.tokenFn()
	ok, err := l.client.SetNX(ctx, l.cfg.Key, token, l.cfg.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, crawler.ErrLockHeld
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	if l.cfg.RefreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.keepAlive(token, stop)
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			if err := l.release(token); err != nil {
				l.logger.Warn("release run lock failed", zap.Error(err))
			}
		})
	}, nil
}

func (l *Lock) keepAlive(token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			err := l.extend(ctx, token)
			cancel()
			if err != nil {
				l.logger.Warn("extend run lock failed", zap.Error(err))
				if errors.Is(err, errNotHeld) {
					return
				}
			}
		}
	}
}

func (l *Lock) extend(ctx context.Context, token string) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.cfg.Key}, token, l.cfg.TTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock: %w", err)
	}
	if n == 0 {
		return errNotHeld
	}
	return nil
}

// release runs on a fresh context: the run's context is often already done.
func (l *Lock) release(token string) error {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	n, err := unlockScript.Run(ctx, l.client, []string{l.cfg.Key}, token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return errNotHeld
	}
	return nil
}

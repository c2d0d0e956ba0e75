package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func newTestLock(t *testing.T, cfg Config) (*Lock, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg, nil), srv
}

func TestTryAcquireExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	l, srv := newTestLock(t, Config{Key: "runs", TTL: time.Minute, RefreshInterval: -1})
	ctx := context.Background()

	release, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, srv.Exists("runs"))
	require.Equal(t, time.Minute, srv.TTL("runs"))

	_, err = l.TryAcquire(ctx)
	require.ErrorIs(t, err, crawler.ErrLockHeld)

	release()
	release()
	require.False(t, srv.Exists("runs"))

	again, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	again()
}

func TestReleaseKeepsForeignKey(t *testing.T) {
	t.Parallel()

	l, srv := newTestLock(t, Config{Key: "runs", TTL: time.Minute, RefreshInterval: -1})

	release, err := l.TryAcquire(context.Background())
	require.NoError(t, err)

	// The key expired and another replica took it over.
	srv.FastForward(2 * time.Minute)
	require.NoError(t, srv.Set("runs", "someone-else"))

	release()
	got, err := srv.Get("runs")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestTryAcquireReportsRedisErrors(t *testing.T) {
	t.Parallel()

	l, srv := newTestLock(t, Config{RefreshInterval: -1})
	srv.Close()

	_, err := l.TryAcquire(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, crawler.ErrLockHeld)
}

func TestExtendRequiresOwnership(t *testing.T) {
	t.Parallel()

	l, srv := newTestLock(t, Config{Key: "runs", TTL: time.Minute, RefreshInterval: -1})
	ctx := context.Background()
	l.tokenFn = func() string { return "mine" }

	release, err := l.TryAcquire(ctx)
	require.NoError(t, err)
	defer release()

	srv.FastForward(30 * time.Second)
	require.NoError(t, l.extend(ctx, "mine"))
	require.Equal(t, time.Minute, srv.TTL("runs"))
	require.ErrorIs(t, l.extend(ctx, "theirs"), errNotHeld)
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	l := New(nil, Config{}, nil)
	require.Equal(t, DefaultKey, l.cfg.Key)
	require.Equal(t, DefaultTTL, l.cfg.TTL)
	require.Equal(t, DefaultTTL/3, l.cfg.RefreshInterval)
}

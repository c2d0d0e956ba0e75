package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

func TestLocalTryAcquire(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	release, err := l.TryAcquire(context.Background())
	require.NoError(t, err)

	_, err = l.TryAcquire(context.Background())
	require.ErrorIs(t, err, crawler.ErrLockHeld)

	release()
	release()

	again, err := l.TryAcquire(context.Background())
	require.NoError(t, err)
	again()
}

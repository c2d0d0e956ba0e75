package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)
	_, err = NewChromedp(Config{SettleDelay: -time.Second})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer fetcher.Close()
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, 45*time.Second, fetcher.cfg.NavigationTimeout)
}

func TestFetcherNavTimeoutDefault(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, 45*time.Second, fetcher.navTimeout())
	fetcher.cfg.NavigationTimeout = time.Second
	require.Equal(t, time.Second, fetcher.navTimeout())
}

func TestAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.Canceled)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	netHeaders := toNetworkHeaders(http.Header{
		"Accept-Language": {"ru-RU"},
		"X-Multi":         {"a", "b"},
		"X-Empty":         {},
	})
	require.Equal(t, "ru-RU", netHeaders["Accept-Language"])
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Multi"])
	_, ok := netHeaders["X-Empty"]
	require.False(t, ok)
}

func TestDocumentStatusIgnoresSubresources(t *testing.T) {
	t.Parallel()

	status := &documentStatus{}
	status.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404},
	})
	require.Zero(t, status.get())

	status.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 429},
	})
	require.Equal(t, 429, status.get())

	status.captureEvent("not an event")
	require.Equal(t, 429, status.get())
}

package source

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/extract"
	"github.com/JakeFAU/listing-crawler/internal/storage/memory"
)

const resultsHTML = `<html><body>
<div data-marker="item">
  <a data-marker="item-title" href="/moskva/kvartiry/1" title="Flat one">Flat one</a>
  <meta itemprop="price" content="5000000">
</div>
<div data-marker="pagination-button/page(1)">1</div>
<div data-marker="pagination-button/page(2)">2</div>
</body></html>`

type fakeRenderer struct {
	mu       sync.Mutex
	body     string
	err      error
	urls     []string
	deadline bool
}

func (f *fakeRenderer) Render(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type fakeLimiter struct {
	calls int
	err   error
}

func (f *fakeLimiter) Wait(context.Context, string) error {
	f.calls++
	return f.err
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestPageURL(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		base string
		page int
		want string
	}{
		"appends to query":  {"https://example.com/all/kvartiry?s=104&pmin=1", 3, "https://example.com/all/kvartiry?s=104&pmin=1&p=3"},
		"starts query":      {"https://example.com/all/kvartiry", 1, "https://example.com/all/kvartiry?p=1"},
		"replaces existing": {"https://example.com/all?p=7", 2, "https://example.com/all?p=2"},
		"keeps query order": {"https://example.com/all?z=1&a=2", 2, "https://example.com/all?z=1&a=2&p=2"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, err := PageURL(tc.base, tc.page)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := PageURL("https://example.com", 0)
	require.Error(t, err)
	_, err = PageURL("/relative", 1)
	require.Error(t, err)
}

func TestFetchPageParsesRenderedDocument(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{body: resultsHTML}
	limiter := &fakeLimiter{}
	src, err := New(renderer, extract.New(extract.Selectors{}), Config{Timeout: time.Second}, nil, WithLimiter(limiter))
	require.NoError(t, err)

	page, err := src.FetchPage(context.Background(), "https://example.com/moskva?s=104", 2)
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	require.Equal(t, "https://example.com/moskva/kvartiry/1", page.Items[0].Link)
	require.Equal(t, []string{"https://example.com/moskva?s=104&p=2"}, renderer.urls)
	require.True(t, renderer.deadline)
	require.Equal(t, 1, limiter.calls)
}

func TestFetchPageWrapsErrors(t *testing.T) {
	t.Parallel()

	renderErr := errors.New("net::ERR_CONNECTION_RESET")
	src, err := New(&fakeRenderer{err: renderErr}, extract.New(extract.Selectors{}), Config{}, nil)
	require.NoError(t, err)

	_, err = src.FetchPage(context.Background(), "https://example.com/a", 4)
	require.ErrorIs(t, err, crawler.ErrFetch)
	require.ErrorIs(t, err, renderErr)
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, 4, fetchErr.Page)
	require.Equal(t, "https://example.com/a", fetchErr.URL)

	limited, err := New(&fakeRenderer{body: resultsHTML}, extract.New(extract.Selectors{}), Config{}, nil,
		WithLimiter(&fakeLimiter{err: context.Canceled}))
	require.NoError(t, err)
	_, err = limited.FetchPage(context.Background(), "https://example.com/a", 1)
	require.ErrorIs(t, err, crawler.ErrFetch)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchPageStoresSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	src, err := New(&fakeRenderer{body: resultsHTML}, extract.New(extract.Selectors{}), Config{SnapshotPrefix: "pages"}, nil,
		WithSnapshots(blobs, nil))
	require.NoError(t, err)

	_, err = src.FetchPage(context.Background(), "https://example.com/a", 1)
	require.NoError(t, err)

	paths := blobs.Paths()
	require.Len(t, paths, 1)
	require.True(t, strings.HasPrefix(paths[0], "pages/"))
	require.True(t, strings.HasSuffix(paths[0], ".html"))
	stored, contentType, ok := blobs.Object(paths[0])
	require.True(t, ok)
	require.Equal(t, resultsHTML, string(stored))
	require.Equal(t, "text/html; charset=utf-8", contentType)
}

func TestSnapshotFailureDoesNotFailFetch(t *testing.T) {
	t.Parallel()

	src, err := New(&fakeRenderer{body: resultsHTML}, extract.New(extract.Selectors{}), Config{}, nil,
		WithSnapshots(failingBlobs{}, nil))
	require.NoError(t, err)

	page, err := src.FetchPage(context.Background(), "https://example.com/a", 1)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	got := SnapshotPath("raw", "https://example.com/a", 3, "abc")
	parts := strings.Split(got, "/")
	require.Len(t, parts, 3)
	require.Equal(t, "raw", parts[0])
	require.Len(t, parts[1], 12)
	require.Equal(t, "3-abc.html", parts[2])
}

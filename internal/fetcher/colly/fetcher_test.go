package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f, err := New(Config{UserAgent: "listing-agent", Timeout: time.Second})
	require.NoError(t, err)

	collector := f.buildCollector()
	require.Equal(t, "listing-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f, err := New(Config{Headers: http.Header{"Accept-Language": {"ru-RU"}}})
	require.NoError(t, err)

	var (
		body     []byte
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "ru-RU", collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, "body", string(body))

	hooks.onError(&colly.Response{StatusCode: http.StatusTooManyRequests}, errors.New("Too Many Requests"))
	require.EqualError(t, fetchErr, "status 429: Too Many Requests")
}

func TestRenderSendsCookieAndReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("view")
		if err != nil || cookie.Value != "gallery" {
			http.Error(w, "missing cookie", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("<html>gallery</html>"))
	}))
	defer srv.Close()

	f, err := New(Config{
		Timeout:   2 * time.Second,
		CookieURL: srv.URL,
		Cookies:   []*http.Cookie{{Name: "view", Value: "gallery"}},
	})
	require.NoError(t, err)

	body, err := f.Render(context.Background(), srv.URL+"/list?p=1")
	require.NoError(t, err)
	require.Equal(t, "<html>gallery</html>", string(body))
}

func TestRenderReportsHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f, err := New(Config{Timeout: 2 * time.Second})
	require.NoError(t, err)

	_, err = f.Render(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 403")
}

func TestRenderHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f, err := New(Config{Timeout: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Render(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

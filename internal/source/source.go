// Package source implements crawler.PageSource on top of a Renderer and the
// listing extractor.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/hash/sha256"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// PageParam is the query parameter selecting a results page.
const PageParam = "p"

// Limiter delays page loads. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Parser turns a rendered document into a page of items.
type Parser interface {
	Parse(body []byte, pageURL string) (crawler.Page, error)
}

// Config controls a Source.
type Config struct {
	// Timeout bounds rendering of a single page. Zero means no extra bound.
	Timeout time.Duration
	// SnapshotPrefix is prepended to snapshot object paths.
	SnapshotPrefix string
}

// Source renders results pages, optionally archives them, and extracts items.
type Source struct {
	renderer crawler.Renderer
	parser   Parser
	limiter  Limiter
	blobs    crawler.BlobStore
	hasher   crawler.Hasher
	cfg      Config
	logger   *zap.Logger
}

// Option customizes a Source.
type Option func(*Source)

// WithLimiter delays every page load through l.
func WithLimiter(l Limiter) Option {
	return func(s *Source) { s.limiter = l }
}

// WithSnapshots stores every rendered document in blobs.
func WithSnapshots(blobs crawler.BlobStore, hasher crawler.Hasher) Option {
	return func(s *Source) {
		s.blobs = blobs
		s.hasher = hasher
	}
}

// New constructs a Source.
func New(renderer crawler.Renderer, parser Parser, cfg Config, logger *zap.Logger, opts ...Option) (*Source, error) {
	if renderer == nil || parser == nil {
		return nil, errors.New("renderer and parser are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Source{
		renderer: renderer,
		parser:   parser,
		cfg:      cfg,
		logger:   logger.Named("source"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blobs != nil && s.hasher == nil {
		s.hasher = sha256.New()
	}
	return s, nil
}

// FetchPage loads page of the search at baseURL. Every error is a
// *crawler.FetchError.
func (s *Source) FetchPage(ctx context.Context, baseURL string, page int) (crawler.Page, error) {
	start := time.Now()
	result, err := s.fetch(ctx, baseURL, page)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObservePageFetch(status, time.Since(start))
	if err != nil {
		return crawler.Page{}, &crawler.FetchError{URL: baseURL, Page: page, Err: err}
	}
	return result, nil
}

func (s *Source) fetch(ctx context.Context, baseURL string, page int) (crawler.Page, error) {
	pageURL, err := PageURL(baseURL, page)
	if err != nil {
		return crawler.Page{}, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return crawler.Page{}, err
		}
	}

	renderCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	body, err := s.renderer.Render(renderCtx, pageURL)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("render: %w", err)
	}
	s.snapshot(ctx, baseURL, page, body)

	result, err := s.parser.Parse(body, pageURL)
	if err != nil {
		return crawler.Page{}, fmt.Errorf("parse: %w", err)
	}
	s.logger.Debug("page parsed",
		zap.String("url", pageURL),
		zap.Int("items", len(result.Items)),
		zap.Int("total_pages", result.TotalPages),
	)
	return result, nil
}

func (s *Source) snapshot(ctx context.Context, baseURL string, page int, body []byte) {
	if s.blobs == nil {
		return
	}
	digest, err := s.hasher.Hash(body)
	if err != nil {
		s.logger.Warn("hash snapshot failed", zap.Error(err))
		return
	}
	objectPath := SnapshotPath(s.cfg.SnapshotPrefix, baseURL, page, digest)
	uri, err := s.blobs.PutObject(ctx, objectPath, "text/html; charset=utf-8", bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("store snapshot failed", zap.String("path", objectPath), zap.Error(err))
		return
	}
	s.logger.Debug("snapshot stored", zap.String("uri", uri))
}

// PageURL appends the page parameter to a search URL, replacing any page
// already present.
func PageURL(baseURL string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page must be >= 1, got %d", page)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", baseURL)
	}
	q := u.Query()
	if _, ok := q[PageParam]; ok {
		q.Set(PageParam, strconv.Itoa(page))
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	// Keep the existing query verbatim; re-encoding would reorder it.
	if u.RawQuery != "" {
		u.RawQuery += "&"
	}
	u.RawQuery += PageParam + "=" + strconv.Itoa(page)
	return u.String(), nil
}

// SnapshotPath is <prefix>/<url-digest>/<page>-<content-digest>.html.
func SnapshotPath(prefix, baseURL string, page int, digest string) string {
	return path.Join(prefix, sha256.Short([]byte(baseURL), 12), fmt.Sprintf("%d-%s.html", page, digest))
}

// Package orchestrator runs one resumable crawl step per invocation: it picks
// up the position from the checkpoint log, fetches a single results page,
// stores the listings it has not seen before, and appends the next checkpoint.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

const tracerName = "github.com/JakeFAU/listing-crawler/internal/orchestrator"

// failureWriteTimeout bounds the error checkpoint written after the run
// context may already be canceled.
const failureWriteTimeout = 5 * time.Second

// Config controls Orchestrator behavior.
type Config struct {
	// Topic receives a crawler.NewListingEvent per inserted listing. Empty
	// disables notifications.
	Topic string
}

// Orchestrator drives crawl runs over a fixed URL sequence.
type Orchestrator struct {
	urls        []string
	checkpoints crawler.CheckpointStore
	items       crawler.ItemStore
	source      crawler.PageSource
	lock        crawler.RunLock
	publisher   crawler.Publisher
	clock       crawler.Clock
	ids         crawler.IDGenerator
	cfg         Config
	logger      *zap.Logger
	tracer      trace.Tracer
}

// New constructs an Orchestrator. The URL sequence is captured once and must
// not be empty. publisher may be nil.
func New(
	urls []string,
	checkpoints crawler.CheckpointStore,
	items crawler.ItemStore,
	source crawler.PageSource,
	lock crawler.RunLock,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("url sequence is empty")
	}
	if checkpoints == nil || items == nil || source == nil {
		return nil, fmt.Errorf("checkpoint store, item store, and page source are required")
	}
	if lock == nil || clock == nil || ids == nil {
		return nil, fmt.Errorf("run lock, clock, and id generator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		urls:        append([]string(nil), urls...),
		checkpoints: checkpoints,
		items:       items,
		source:      source,
		lock:        lock,
		publisher:   publisher,
		clock:       clock,
		ids:         ids,
		cfg:         cfg,
		logger:      logger.Named("orchestrator"),
		tracer:      otel.Tracer(tracerName),
	}, nil
}

// SequenceLength reports how many URLs the orchestrator cycles through.
func (o *Orchestrator) SequenceLength() int {
	return len(o.urls)
}

// Run performs one crawl step and reports how it ended. Run never returns an
// error: every failure is folded into a crawler.RunFailed result and, where
// the attempted position is known, an error checkpoint.
func (o *Orchestrator) Run(ctx context.Context) crawler.RunResult {
	start := o.clock.Now()
	runID, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("run id generation failed", zap.Error(err))
		runID = fmt.Sprintf("run-%d", start.UnixNano())
	}
	logger := o.logger.With(zap.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "crawl.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	var result crawler.RunResult
	release, err := o.lock.TryAcquire(ctx)
	switch {
	case errors.Is(err, crawler.ErrLockHeld):
		logger.Info("another run is active, skipping")
		result = crawler.RunResult{Status: crawler.RunSkipped, Reason: "another run is active"}
	case err != nil:
		logger.Error("acquire run lock failed", zap.Error(err))
		result = crawler.RunResult{Status: crawler.RunFailed, Reason: fmt.Sprintf("acquire run lock: %v", err)}
	default:
		result = o.runLocked(ctx, release, runID, logger)
	}

	result.RunID = runID
	result.Duration = o.clock.Now().Sub(start)
	metrics.ObserveRun(string(result.Status), result.Duration)

	span.SetAttributes(
		attribute.String("status", string(result.Status)),
		attribute.Int("sequence_index", result.SequenceIndex),
		attribute.Int("page", result.Page),
		attribute.Int("inserted", result.Inserted),
	)
	if result.Status == crawler.RunFailed {
		span.SetStatus(codes.Error, result.Reason)
	}

	logger.Info("run finished",
		zap.String("status", string(result.Status)),
		zap.String("reason", result.Reason),
		zap.Int("sequence_index", result.SequenceIndex),
		zap.Int("page", result.Page),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (o *Orchestrator) runLocked(ctx context.Context, release func(), runID string, logger *zap.Logger) crawler.RunResult {
	defer release()
	return o.run(ctx, runID, logger)
}

func (o *Orchestrator) run(ctx context.Context, runID string, logger *zap.Logger) (out crawler.RunResult) {
	pos, err := o.resume(ctx)
	if err != nil {
		logger.Error("load checkpoint failed", zap.Error(err))
		return crawler.RunResult{Status: crawler.RunFailed, Reason: fmt.Sprintf("load checkpoint: %v", err)}
	}
	logger = logger.With(zap.Int("sequence_index", pos.SequenceIndex), zap.Int("page", pos.Page))

	result := crawler.RunResult{Status: crawler.RunSucceeded, SequenceIndex: pos.SequenceIndex, Page: pos.Page}
	// A panicking collaborator is recorded at the attempted position like any
	// other fetch or ingest failure.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = o.fail(ctx, runID, pos, result, fmt.Sprintf("panic: %v", r), logger)
		}
	}()

	url := o.urls[pos.SequenceIndex]
	logger.Debug("fetching page", zap.String("url", url))

	page, err := o.source.FetchPage(ctx, url, pos.Page)
	if err != nil {
		return o.fail(ctx, runID, pos, crawler.RunResult{}, fmt.Sprintf("fetch page: %v", err), logger)
	}

	if pos.Page > page.TotalPages {
		next := Wrap(pos, len(o.urls))
		logger.Info("url exhausted, wrapping",
			zap.Int("total_pages", page.TotalPages),
			zap.Int("next_sequence_index", next.SequenceIndex),
		)
		cp := crawler.Checkpoint{
			SequenceIndex: next.SequenceIndex,
			Page:          next.Page,
			Outcome:       crawler.OutcomeExhausted,
			Reason:        fmt.Sprintf("page %d beyond last page %d", pos.Page, page.TotalPages),
			RunID:         runID,
		}
		if err := o.persist(ctx, cp); err != nil {
			logger.Error("persist wraparound checkpoint failed", zap.Error(err))
			return crawler.RunResult{
				Status:        crawler.RunFailed,
				Reason:        fmt.Sprintf("persist checkpoint: %v", err),
				SequenceIndex: pos.SequenceIndex,
				Page:          pos.Page,
			}
		}
		return crawler.RunResult{Status: crawler.RunWraparound, SequenceIndex: next.SequenceIndex, Page: next.Page}
	}

	for _, item := range page.Items {
		inserted, err := o.ingest(ctx, runID, item, logger)
		if err != nil {
			metrics.ObserveItems("inserted", result.Inserted)
			metrics.ObserveItems("skipped", result.Skipped)
			return o.fail(ctx, runID, pos, result, fmt.Sprintf("ingest %s: %v", item.Link, err), logger)
		}
		if inserted {
			result.Inserted++
		} else {
			result.Skipped++
		}
	}
	metrics.ObserveItems("inserted", result.Inserted)
	metrics.ObserveItems("skipped", result.Skipped)

	cp := crawler.Checkpoint{
		SequenceIndex: pos.SequenceIndex,
		Page:          pos.Page,
		Outcome:       crawler.OutcomeProgressed,
		RunID:         runID,
	}
	if len(page.Items) == 0 {
		logger.Warn("page returned no listings, will retry", zap.Int("total_pages", page.TotalPages))
		cp.Outcome = crawler.OutcomeFailed
		cp.Reason = "empty page"
	}
	if err := o.persist(ctx, cp); err != nil {
		logger.Error("persist checkpoint failed", zap.Error(err))
		result.Status = crawler.RunFailed
		result.Reason = fmt.Sprintf("persist checkpoint: %v", err)
	}
	return result
}

func (o *Orchestrator) resume(ctx context.Context) (crawler.Position, error) {
	last, err := o.checkpoints.Last(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		return Start, nil
	}
	if err != nil {
		return crawler.Position{}, err
	}
	return Resume(last, len(o.urls)), nil
}

// ingest stores item unless its link is already known. It reports whether a
// new listing was written.
func (o *Orchestrator) ingest(ctx context.Context, runID string, item crawler.Item, logger *zap.Logger) (bool, error) {
	if item.Link == "" {
		logger.Warn("skipping listing without link", zap.String("title", item.Title))
		return false, nil
	}
	exists, err := o.items.Exists(ctx, item.Link)
	if err != nil {
		return false, fmt.Errorf("check existing: %w", err)
	}
	if exists {
		return false, nil
	}
	listing, err := o.items.Insert(ctx, crawler.NewListing{
		Item:      item,
		StatusID:  crawler.StatusNew,
		CreatedAt: o.clock.Now(),
	})
	if errors.Is(err, crawler.ErrDuplicate) {
		logger.Debug("listing inserted concurrently", zap.String("link", item.Link))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert: %w", err)
	}
	o.notify(ctx, runID, listing, logger)
	return true, nil
}

func (o *Orchestrator) notify(ctx context.Context, runID string, listing crawler.Listing, logger *zap.Logger) {
	if o.publisher == nil || o.cfg.Topic == "" {
		return
	}
	event := crawler.NewListingEvent{
		RunID:        runID,
		ListingID:    listing.ID,
		Link:         listing.Link,
		Title:        listing.Title,
		Price:        listing.Price,
		IsVideo:      listing.IsVideo,
		DiscoveredAt: listing.CreatedAt,
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.Topic, event); err != nil {
		metrics.ObservePublishFailure()
		logger.Warn("publish new listing failed", zap.String("link", listing.Link), zap.Error(err))
	}
}

// fail records an error checkpoint at the attempted position so the next run
// retries it. The write is best-effort.
func (o *Orchestrator) fail(
	ctx context.Context,
	runID string,
	pos crawler.Position,
	partial crawler.RunResult,
	reason string,
	logger *zap.Logger,
) crawler.RunResult {
	logger.Error("run failed", zap.String("reason", reason))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()
	cp := crawler.Checkpoint{
		SequenceIndex: pos.SequenceIndex,
		Page:          pos.Page,
		Outcome:       crawler.OutcomeFailed,
		Reason:        reason,
		RunID:         runID,
	}
	if err := o.persist(writeCtx, cp); err != nil {
		logger.Error("persist error checkpoint failed", zap.Error(err))
	}
	return crawler.RunResult{
		Status:        crawler.RunFailed,
		Reason:        reason,
		SequenceIndex: pos.SequenceIndex,
		Page:          pos.Page,
		Inserted:      partial.Inserted,
		Skipped:       partial.Skipped,
	}
}

func (o *Orchestrator) persist(ctx context.Context, cp crawler.Checkpoint) error {
	cp.Error = cp.Outcome.ErrorFlag()
	cp.CreatedAt = o.clock.Now()
	stored, err := o.checkpoints.Append(ctx, cp)
	if err != nil {
		return err
	}
	metrics.SetPosition(stored.SequenceIndex, stored.Page)
	return nil
}

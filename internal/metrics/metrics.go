// Package metrics exposes Prometheus collectors for the listing crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerRunsTotal             *prometheus.CounterVec
	crawlerRunDurationSeconds    *prometheus.HistogramVec
	crawlerItemsTotal            *prometheus.CounterVec
	crawlerCheckpointPosition    *prometheus.GaugeVec
	crawlerPageFetchSeconds      *prometheus.HistogramVec
	crawlerPublishFailuresTotal  prometheus.Counter
	crawlerPolitenessWaitSeconds prometheus.Histogram
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of crawl runs, labeled by result.",
			},
			[]string{"result"},
		)

		crawlerRunDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_run_duration_seconds",
				Help:    "Histogram of crawl run durations, labeled by result.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"result"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Total number of listings seen during ingestion, labeled by action.",
			},
			[]string{"action"},
		)

		crawlerCheckpointPosition = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_checkpoint_position",
				Help: "Position recorded by the latest checkpoint.",
			},
			[]string{"dimension"},
		)

		crawlerPageFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_page_fetch_seconds",
				Help:    "Histogram of results page fetch latencies, labeled by status.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"status"},
		)

		crawlerPublishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_publish_failures_total",
				Help: "Total number of new-listing notifications that failed to publish.",
			},
		)

		crawlerPolitenessWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_politeness_wait_seconds",
				Help:    "Histogram of waits imposed between page loads.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the result and duration of one crawl run.
func ObserveRun(result string, duration time.Duration) {
	crawlerRunsTotal.WithLabelValues(result).Inc()
	crawlerRunDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveItems adds n to the ingestion counter for action.
func ObserveItems(action string, n int) {
	if n <= 0 {
		return
	}
	crawlerItemsTotal.WithLabelValues(action).Add(float64(n))
}

// SetPosition publishes the latest checkpoint position.
func SetPosition(sequenceIndex, page int) {
	crawlerCheckpointPosition.WithLabelValues("sequence_index").Set(float64(sequenceIndex))
	crawlerCheckpointPosition.WithLabelValues("page").Set(float64(page))
}

// ObservePageFetch records the latency of one results page fetch.
func ObservePageFetch(status string, duration time.Duration) {
	crawlerPageFetchSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// ObservePublishFailure increments the notification failure counter.
func ObservePublishFailure() {
	crawlerPublishFailuresTotal.Inc()
}

// ObservePolitenessWait records time spent waiting on the page-load limiter.
func ObservePolitenessWait(duration time.Duration) {
	crawlerPolitenessWaitSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

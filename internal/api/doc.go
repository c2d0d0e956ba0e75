// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - /v1/listings for browsing and curating stored listings.
//   - GET /v1/checkpoints for the crawl progress log.
//   - POST /v1/runs to trigger a crawl step out of schedule.
package api

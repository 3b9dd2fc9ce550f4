// Package metrics provides the centralized Prometheus registry reference
// for the export client. Metrics are defined in their respective packages
// (client, cache, pacing) to maintain modularity and avoid circular
// dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registerer used by the export client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - export_requests_total{status} (Counter): Page requests by HTTP status,
//     plus "cache_hit" and "transport_error" pseudo-statuses
//   - export_request_duration_seconds (Histogram): Page fetch duration
//   - export_errors_total{kind} (Counter): Errors by kind (upstream_timeout,
//     upstream_error, malformed_response)
//   - export_partial_responses_total (Counter): Pages flagged partial
//   - export_rows_total (Counter): Rows fetched
//
// Retry Metrics (pkg/client):
//   - export_retries_total (Counter): Retry attempts via the Retry helper
//   - export_retry_backoff_seconds (Histogram): Backoff durations
//   - export_retry_exhausted_total (Counter): Exhausted retry loops
//
// Cache Metrics (pkg/cache):
//   - export_cache_hits_total (Counter): Page cache hits
//   - export_cache_misses_total (Counter): Page cache misses
//   - export_cache_bytes_total (Counter): Bytes written to cache
//   - export_cache_rows_total (Counter): Rows written to cache
//   - export_cache_errors_total{operation} (Counter): Cache operation errors
//
// Pacing Metrics (pkg/pacing):
//   - export_pacing_wait_seconds (Histogram): Waits before page fetches
//   - export_cooldowns_total (Counter): Retry-After cooldowns recorded
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   rate(export_cache_hits_total[5m]) /
//   (rate(export_cache_hits_total[5m]) + rate(export_cache_misses_total[5m]))
//
//   # Partial-Response Rate
//   rate(export_partial_responses_total[5m]) / rate(export_requests_total[5m])
//
//   # P95 Page Fetch Latency
//   histogram_quantile(0.95, rate(export_request_duration_seconds_bucket[5m]))

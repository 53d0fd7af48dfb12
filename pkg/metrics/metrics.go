// Package metrics exposes the Prometheus registry used by the ledger proxy.
// All metrics are defined in their respective packages (cache, client, ratelimit)
// to keep those packages free of a shared dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto collectors land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - ledger_cache_hits_total (Counter): Fetches served from a fresh entry
//   - ledger_cache_misses_total{reason} (Counter): Transport calls by reason (cold, expired, forced)
//   - ledger_cache_stale_fallbacks_total (Counter): Failures answered with a stale payload
//   - ledger_cache_fetch_errors_total (Counter): Failures with nothing to fall back on
//   - ledger_cache_invalidations_total{scope} (Counter): Removed entries (key, pattern, expired, clear)
//   - ledger_cache_notifications_total (Counter): Update callbacks invoked
//   - ledger_cache_entries (Gauge): Keys currently stored
//
// Request Metrics (pkg/client):
//   - ledger_api_requests_total{method, status} (Counter): Spreadsheet API requests
//   - ledger_api_request_duration_seconds{method} (Histogram): Request duration
//   - ledger_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - ledger_api_retries_total{error_class} (Counter): Retry attempts
//   - ledger_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - ledger_api_retry_exhausted_total{error_class} (Counter): Reads that exhausted max retries
//
// Quota Metrics (pkg/ratelimit):
//   - ledger_api_quota_remaining (Gauge): Calls left in the current quota window
//   - ledger_api_quota_blocks_total (Counter): Requests blocked by an exhausted quota
//   - ledger_api_quota_throttles_total (Counter): Requests delayed by a low quota
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(ledger_cache_hits_total[5m])) /
//   (sum(rate(ledger_cache_hits_total[5m])) + sum(rate(ledger_cache_misses_total[5m])))
//
//   # Stale Answers
//   rate(ledger_cache_stale_fallbacks_total[5m])
//
//   # P95 Spreadsheet API Latency
//   histogram_quantile(0.95, rate(ledger_api_request_duration_seconds_bucket[5m]))

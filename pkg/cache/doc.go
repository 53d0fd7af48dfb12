// Package cache provides the in-memory response cache that shields the
// spreadsheet API from repeated reads.
//
// The response cache implements the following features:
//
// - Per-fetch TTL with a one hour default
// - Deterministic cache keys from a resource URL and sorted filters
// - Stale fallback: a failed refresh serves the last good payload
// - Single-key and substring invalidation
// - Update subscriptions notified on every successful refresh
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	rc := cache.New(transport, cache.DefaultConfig())
//
//	data, err := rc.Fetch(ctx, membersURL, cache.FetchOptions{
//		TTL: 30 * time.Minute,
//	})
//
// # Subscriptions
//
//	unsubscribe := rc.OnUpdate(cache.Key(membersURL, nil), func(data []byte) {
//		// decode and refresh local state
//	})
//	defer unsubscribe()
//
// Callbacks run on the goroutine that performed the refresh, in registration
// order. Registering the same func twice yields two independent registrations.
//
// # Expiry
//
// Entries are never swept in the background. An expired entry stays in the
// store until it is refreshed, invalidated, or observed by IsValid, and it
// remains available for stale fallback until then.
//
// # Metrics
//
//   - ledger_cache_hits_total - Fresh hits
//   - ledger_cache_misses_total{reason} - cold, expired, forced
//   - ledger_cache_stale_fallbacks_total - Failures served from stale entries
//   - ledger_cache_fetch_errors_total - Failures propagated to the caller
//   - ledger_cache_invalidations_total{scope} - key, pattern, expired, clear
//   - ledger_cache_notifications_total - Update callbacks invoked
//   - ledger_cache_entries - Stored entries
package cache

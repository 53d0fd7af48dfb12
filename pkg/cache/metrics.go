package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks fetches served from a fresh entry
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks fetches that went to the transport (miss, expiry or forced refresh)
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_misses_total",
			Help: "Total number of response cache misses by reason",
		},
		[]string{"reason"}, // "cold", "expired", "forced"
	)

	// StaleFallbacks tracks transport failures answered with a stale payload
	StaleFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_stale_fallbacks_total",
			Help: "Total number of transport failures served from a stale entry",
		},
	)

	// FetchErrors tracks transport failures with nothing to fall back on
	FetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_fetch_errors_total",
			Help: "Total number of fetch failures propagated to the caller",
		},
	)

	// Invalidations tracks removed entries by scope
	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_invalidations_total",
			Help: "Total number of cache entries removed by invalidation",
		},
		[]string{"scope"}, // "key", "pattern", "expired", "clear"
	)

	// Notifications tracks subscriber callbacks invoked
	Notifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_cache_notifications_total",
			Help: "Total number of update callbacks invoked",
		},
	)

	// Entries tracks the number of keys currently stored
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_cache_entries",
			Help: "Current number of entries in the response cache",
		},
	)
)

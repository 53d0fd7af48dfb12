package cache

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTTL applies when FetchOptions.TTL is zero.
	DefaultTTL = time.Hour

	// NoExpiry stores an entry that never expires on its own.
	NoExpiry time.Duration = -1

	// NoExpirySentinel is reported by Stats for entries without expiry.
	NoExpirySentinel = -1
)

// Config holds the response cache configuration.
type Config struct {
	// DefaultTTL is used when a fetch does not set one.
	DefaultTTL time.Duration

	// Now is the wall clock used for expiry (default: time.Now).
	Now func() time.Time

	// Logger defaults to the global logger tagged with component=response-cache.
	Logger *zerolog.Logger
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: DefaultTTL,
		Now:        time.Now,
	}
}

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	// TTL for the refreshed entry. Zero uses the configured default.
	TTL time.Duration

	// ForceRefresh skips the validity check but still stores the result.
	ForceRefresh bool

	// Filters only take part in key derivation.
	Filters map[string]string

	// Method and Body are passed through to the transport.
	Method string
	Body   any
}

// ResponseCache is a keyed, TTL-bounded in-memory store in front of a Transport.
// It is safe for concurrent use. Concurrent fetches of the same key are not
// coalesced; the last successful write-back wins.
type ResponseCache struct {
	transport  Transport
	defaultTTL time.Duration
	now        func() time.Time
	logger     zerolog.Logger

	mu      sync.RWMutex
	entries map[string]*CacheEntry
	subs    *subscribers
}

// New creates a response cache over transport.
func New(transport Transport, cfg Config) *ResponseCache {
	if transport == nil {
		panic("transport cannot be nil")
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	logger := log.With().Str("component", "response-cache").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &ResponseCache{
		transport:  transport,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
		logger:     logger,
		entries:    make(map[string]*CacheEntry),
		subs:       newSubscribers(),
	}
}

// Fetch returns the payload for resourceID, serving it from the cache while
// fresh and refreshing it through the transport otherwise.
//
// If the transport fails and any entry exists for the key, expired or not, its
// payload is returned instead of the error. With no entry at all, Fetch returns
// a *FetchError.
func (c *ResponseCache) Fetch(ctx context.Context, resourceID string, opts FetchOptions) ([]byte, error) {
	key := Key(resourceID, opts.Filters)

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	c.mu.RLock()
	existing, found := c.entries[key]
	c.mu.RUnlock()

	reason := "cold"
	switch {
	case opts.ForceRefresh:
		reason = "forced"
	case found && !existing.IsExpired(c.now()):
		CacheHits.Inc()
		c.logger.Debug().
			Str("key", key).
			Dur("ttl", existing.TTL(c.now())).
			Msg("Cache hit")
		return existing.Data, nil
	case found:
		reason = "expired"
	}

	CacheMisses.WithLabelValues(reason).Inc()
	c.logger.Debug().Str("key", key).Str("reason", reason).Msg("Cache miss")

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	data, err := c.transport.Do(ctx, Request{
		Method: method,
		URL:    resourceID,
		Body:   opts.Body,
	})
	if err != nil {
		return c.fallback(key, err)
	}

	now := c.now()
	entry := &CacheEntry{
		Key:      key,
		Data:     data,
		CachedAt: now,
	}
	if ttl != NoExpiry {
		entry.Expires = now.Add(ttl)
	}

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		Entries.Inc()
	}
	c.entries[key] = entry
	c.mu.Unlock()

	c.logger.Info().
		Str("key", key).
		Int("bytes", len(data)).
		Dur("ttl", ttl).
		Msg("Cache refreshed")

	c.notify(key, data)

	return data, nil
}

// fallback serves whatever entry exists for key after a transport failure.
// The entry is re-read so an invalidation during the failed call is honoured.
func (c *ResponseCache) fallback(key string, fetchErr error) ([]byte, error) {
	c.mu.RLock()
	stale, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		StaleFallbacks.Inc()
		c.logger.Warn().
			Err(fetchErr).
			Str("key", key).
			Time("expires", stale.Expires).
			Msg("Fetch failed, serving stale entry")
		return stale.Data, nil
	}

	FetchErrors.Inc()
	c.logger.Error().Err(fetchErr).Str("key", key).Msg("Fetch failed with no cached entry")
	return nil, &FetchError{Key: key, Err: fetchErr}
}

// Key derives the cache key for resourceID and filters.
func (c *ResponseCache) Key(resourceID string, filters map[string]string) string {
	return Key(resourceID, filters)
}

// Get returns the entry stored for key without checking expiry or fetching.
func (c *ResponseCache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	cp := *entry
	return &cp, true
}

// IsValid reports whether a fresh entry exists for key. An expired entry is
// removed as a side effect.
func (c *ResponseCache) IsValid(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	if entry.IsExpired(c.now()) {
		delete(c.entries, key)
		Entries.Dec()
		Invalidations.WithLabelValues("expired").Inc()
		c.logger.Debug().Str("key", key).Msg("Evicted expired entry")
		return false
	}
	return true
}

// Invalidate removes the entry for resourceID and filters, if present.
func (c *ResponseCache) Invalidate(resourceID string, filters map[string]string) {
	key := Key(resourceID, filters)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	Entries.Dec()
	Invalidations.WithLabelValues("key").Inc()
	c.logger.Debug().Str("key", key).Msg("Invalidated entry")
}

// InvalidatePattern removes every entry whose key contains substr and returns
// how many were removed.
func (c *ResponseCache) InvalidatePattern(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.Contains(key, substr) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		Entries.Sub(float64(removed))
		Invalidations.WithLabelValues("pattern").Add(float64(removed))
		c.logger.Debug().
			Str("pattern", substr).
			Int("removed", removed).
			Msg("Invalidated entries by pattern")
	}
	return removed
}

// Clear empties the store. Subscriptions are kept.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*CacheEntry)
	Entries.Sub(float64(n))
	Invalidations.WithLabelValues("clear").Add(float64(n))
	c.logger.Info().Int("removed", n).Msg("Cache cleared")
}

// OnUpdate registers fn to be called with the new payload on every successful
// refresh of key. Each call creates a separate registration; the returned func
// removes exactly that one.
func (c *ResponseCache) OnUpdate(key string, fn func(data []byte)) (unsubscribe func()) {
	id := c.subs.add(key, fn)
	c.logger.Debug().Str("key", key).Str("subscription", id.String()).Msg("Subscribed to updates")

	return func() {
		if c.subs.remove(key, id) {
			c.logger.Debug().Str("key", key).Str("subscription", id.String()).Msg("Unsubscribed from updates")
		}
	}
}

// notify invokes the key's callbacks in registration order. A panicking
// callback is logged and does not stop the others.
func (c *ResponseCache) notify(key string, data []byte) {
	for _, sub := range c.subs.snapshot(key) {
		c.invoke(key, sub, data)
	}
}

func (c *ResponseCache) invoke(key string, sub subscription, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("key", key).
				Str("subscription", sub.id.String()).
				Str("panic", fmt.Sprint(r)).
				Msg("Update callback panicked")
		}
	}()
	Notifications.Inc()
	sub.fn(data)
}

// EntryStat is a diagnostic snapshot of one entry.
type EntryStat struct {
	Key     string `json:"key"`
	Expired bool   `json:"expired"`
	// SecondsRemaining is NoExpirySentinel when the entry has no expiry,
	// and 0 once expired. Partial seconds round up, so a live entry reports at least 1.
	SecondsRemaining int `json:"seconds_remaining"`
}

// Stats returns a read-only snapshot of every entry, sorted by key.
func (c *ResponseCache) Stats() []EntryStat {
	now := c.now()

	c.mu.RLock()
	stats := make([]EntryStat, 0, len(c.entries))
	for key, entry := range c.entries {
		stat := EntryStat{Key: key, Expired: entry.IsExpired(now)}
		switch {
		case entry.Expires.IsZero():
			stat.SecondsRemaining = NoExpirySentinel
		case !stat.Expired:
			stat.SecondsRemaining = max(1, int(math.Ceil(entry.TTL(now).Seconds())))
		}
		stats = append(stats, stat)
	}
	c.mu.RUnlock()

	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Len returns the number of stored entries.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

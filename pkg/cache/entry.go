package cache

import (
	"time"
)

// CacheEntry is the last successful payload stored for a key.
type CacheEntry struct {
	// Key is the derived cache key (see Key).
	Key string `json:"key"`

	// Data is the raw response body of the last successful fetch.
	Data []byte `json:"data"`

	// Expires is when the entry becomes stale. Zero means no expiry is tracked.
	Expires time.Time `json:"expires"`

	// CachedAt is when the payload was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry is expired at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	if e.Expires.IsZero() {
		return false
	}
	return now.After(e.Expires)
}

// TTL returns the time left until expiration at now.
// Returns 0 if already expired.
func (e *CacheEntry) TTL(now time.Time) time.Duration {
	ttl := e.Expires.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

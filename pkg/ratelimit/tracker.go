package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_api_quota_remaining",
		Help: "Number of spreadsheet API calls remaining in the current window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_api_quota_blocks_total",
		Help: "Total number of requests blocked due to an exhausted quota",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_api_quota_throttles_total",
		Help: "Total number of requests throttled due to a low quota",
	})
)

// DefaultThrottleDelay is how long a request waits in the warning zone.
const DefaultThrottleDelay = time.Second

// Tracker monitors the API quota and gates requests.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new quota tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:         redisClient,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides the warning-zone delay (for testing).
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState retrieves the current quota state from Redis.
// Returns a default healthy state if nothing is stored or the window has reset.
func (t *Tracker) GetState(ctx context.Context) (*QuotaState, error) {
	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		t.logger.Debug().Msg("No quota state in Redis, returning default healthy state")
		return defaultState(time.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := t.redis.Get(ctx, RedisKeyResetTimestamp).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := t.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &QuotaState{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}

	// The window has rolled over since the last observation.
	if resetTimestamp > 0 && time.Now().After(state.ResetAt) {
		return defaultState(time.Now()), nil
	}

	state.UpdateHealth()
	return state, nil
}

// parseQuotaHeaders extracts the quota from response headers. ok is false when
// the response carries no quota information.
func parseQuotaHeaders(headers http.Header, now time.Time) (state *QuotaState, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, false, fmt.Errorf("%s header missing", HeaderReset)
	}

	resetSeconds, err := strconv.Atoi(resetStr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	state = &QuotaState{
		Remaining:  remain,
		ResetAt:    now.Add(time.Duration(resetSeconds) * time.Second),
		LastUpdate: now,
	}
	state.UpdateHealth()
	return state, true, nil
}

// UpdateFromHeaders parses quota headers and updates Redis state.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := parseQuotaHeaders(headers, time.Now())
	if err != nil || !ok {
		return err
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}

	quotaRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("API quota CRITICAL - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("API quota WARNING - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("API quota state updated")
	}

	return nil
}

// ShouldAllowRequest reports whether a request may be sent. In the warning
// zone it waits for the throttle delay first.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get quota state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("API quota critical - blocking request")

		quotaBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("API quota warning - throttling request")

		quotaThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.throttleDelay):
		}
	}

	return true, nil
}

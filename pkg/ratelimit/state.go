// Package ratelimit implements spreadsheet API quota tracking and request gating.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers so that
// several proxy instances sharing one API key stop before the quota runs dry.
package ratelimit

import (
	"time"
)

// Redis keys for quota state storage.
const (
	RedisKeyRemaining      = "ledger:quota:remaining"
	RedisKeyResetTimestamp = "ledger:quota:reset_timestamp"
	RedisKeyLastUpdate     = "ledger:quota:last_update"
)

// Response headers carrying the quota.
const (
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
)

// Thresholds for quota decisions.
const (
	// QuotaThresholdCritical blocks all requests when remaining calls fall below this value.
	QuotaThresholdCritical = 3

	// QuotaThresholdWarning applies throttling when remaining calls fall below this value.
	QuotaThresholdWarning = 20

	// QuotaThresholdHealthy indicates normal operation.
	QuotaThresholdHealthy = 50
)

// QuotaState represents the current API quota.
// This state is shared across all proxy instances via Redis.
type QuotaState struct {
	// Remaining is the number of calls left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last observed.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= QuotaThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState assumes a healthy quota until real headers arrive.
func defaultState(now time.Time) *QuotaState {
	return &QuotaState{
		Remaining:  100,
		ResetAt:    now.Add(60 * time.Second),
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *QuotaState) NeedsCriticalBlock() bool {
	return s.Remaining < QuotaThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *QuotaState) NeedsThrottling() bool {
	return s.Remaining < QuotaThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the quota resets.
// Returns 0 if the reset time has already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *QuotaState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= QuotaThresholdHealthy
}

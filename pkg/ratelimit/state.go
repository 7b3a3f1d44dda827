// Package ratelimit tracks the BitMEX REST request budget and gates requests.
// It reads the x-ratelimit-limit, x-ratelimit-remaining and x-ratelimit-reset
// response headers so a run stops before BitMEX starts answering 429 and,
// after repeated violations, bans the IP.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "bitmex:rate_limit:remaining"
	RedisKeyLimit          = "bitmex:rate_limit:limit"
	RedisKeyResetTimestamp = "bitmex:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "bitmex:rate_limit:last_update"
)

// Thresholds for rate limit decisions, in requests left in the current window.
const (
	// RemainingThresholdCritical blocks requests when remaining falls below this value.
	RemainingThresholdCritical = 1

	// RemainingThresholdWarning throttles requests when remaining falls below this value.
	RemainingThresholdWarning = 5

	// RemainingThresholdHealthy indicates normal operation.
	RemainingThresholdHealthy = 10
)

// DefaultLimit is the unauthenticated BitMEX budget per minute.
const DefaultLimit = 30

// MaxStateAge is how long a stored state is trusted. BitMEX windows are one
// minute, so anything older describes a window that has already refilled.
const MaxStateAge = 2 * time.Minute

// RateLimitState is the last observed BitMEX request budget.
// It is shared across feeder runs via Redis.
type RateLimitState struct {
	// Limit is the window size from x-ratelimit-limit.
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window from x-ratelimit-remaining.
	Remaining int `json:"remaining"`

	// ResetAt is when the window refills, from x-ratelimit-reset (epoch seconds).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= RemainingThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// DefaultState returns a full budget window, used when nothing is known yet.
func DefaultState() *RateLimitState {
	now := time.Now()
	state := &RateLimitState{
		Limit:      DefaultLimit,
		Remaining:  DefaultLimit,
		ResetAt:    now.Add(time.Minute),
		LastUpdate: now,
	}
	state.UpdateHealth()
	return state
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// HasReset reports whether the window recorded in this state has already refilled.
func (s *RateLimitState) HasReset() bool {
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < RemainingThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < RemainingThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window refills, or 0 if it already has.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= RemainingThresholdHealthy
}

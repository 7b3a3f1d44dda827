package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
		{
			name:     "just under max age",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-4 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.state.IsStale(tt.maxAge); result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_Thresholds(t *testing.T) {
	tests := []struct {
		name           string
		remaining      int
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{name: "full window", remaining: 30, expectHealthy: true},
		{name: "at healthy threshold", remaining: RemainingThresholdHealthy, expectHealthy: true},
		{name: "between warning and healthy", remaining: 7},
		{name: "warning", remaining: 3, expectThrottle: true},
		{name: "at critical threshold", remaining: RemainingThresholdCritical, expectThrottle: true},
		{name: "exhausted", remaining: 0, expectBlock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{
				Remaining: tt.remaining,
				ResetAt:   time.Now().Add(60 * time.Second),
			}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expectBlock)
			}
			if got := state.NeedsThrottling(); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expectThrottle)
			}
			if state.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	future := &RateLimitState{ResetAt: time.Now().Add(30 * time.Second)}
	if d := future.TimeUntilReset(); d <= 0 || d > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want (0, 30s]", d)
	}
	if future.HasReset() {
		t.Error("HasReset() should be false for a future reset")
	}

	past := &RateLimitState{ResetAt: time.Now().Add(-30 * time.Second)}
	if d := past.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0", d)
	}
	if !past.HasReset() {
		t.Error("HasReset() should be true for a past reset")
	}
}

func TestDefaultState(t *testing.T) {
	state := DefaultState()

	if state.Remaining != DefaultLimit || state.Limit != DefaultLimit {
		t.Errorf("DefaultState() = %d/%d, want %d/%d", state.Remaining, state.Limit, DefaultLimit, DefaultLimit)
	}
	if !state.IsHealthy {
		t.Error("DefaultState() should be healthy")
	}
}

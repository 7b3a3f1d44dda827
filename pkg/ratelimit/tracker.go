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

// Response headers carrying the BitMEX request budget.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
	HeaderReset     = "X-Ratelimit-Reset"
)

// ThrottleDelay is how long a request waits when the budget is in the warning zone.
var ThrottleDelay = 1 * time.Second

// Prometheus metrics for rate limit tracking.
var (
	bitmexRequestsRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bitmex_rate_limit_remaining",
		Help: "Requests remaining in the current BitMEX rate limit window",
	})

	bitmexRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitmex_rate_limit_blocks_total",
		Help: "Total number of requests blocked because the BitMEX budget was exhausted",
	})

	bitmexRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bitmex_rate_limit_throttles_total",
		Help: "Total number of requests delayed because the BitMEX budget was low",
	})
)

// Tracker records the BitMEX request budget in Redis and gates requests.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the current rate limit state from Redis.
// A missing, stale or already refilled window yields DefaultState.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	values, err := t.redis.MGet(ctx, RedisKeyRemaining, RedisKeyLimit, RedisKeyResetTimestamp, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get rate limit state: %w", err)
	}

	if values[0] == nil || values[2] == nil {
		t.logger.Debug().Msg("No rate limit state in Redis, returning default state")
		return DefaultState(), nil
	}

	remaining, err := parseStored(values[0])
	if err != nil {
		return nil, fmt.Errorf("parse remaining: %w", err)
	}

	limit := DefaultLimit
	if values[1] != nil {
		if limit, err = parseStored(values[1]); err != nil {
			return nil, fmt.Errorf("parse limit: %w", err)
		}
	}

	resetTimestamp, err := parseStored(values[2])
	if err != nil {
		return nil, fmt.Errorf("parse reset timestamp: %w", err)
	}

	var lastUpdate time.Time
	if s, ok := values[3].(string); ok && s != "" {
		if err := json.Unmarshal([]byte(s), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(int64(resetTimestamp), 0),
		LastUpdate: lastUpdate,
	}

	if state.HasReset() {
		t.logger.Debug().Time("reset_at", state.ResetAt).Msg("Stored rate limit window has refilled")
		return DefaultState(), nil
	}

	if state.IsStale(MaxStateAge) {
		t.logger.Debug().Time("last_update", state.LastUpdate).Msg("Stored rate limit state is stale")
		return DefaultState(), nil
	}

	state.UpdateHealth()
	return state, nil
}

// ParseHeaders extracts the budget from BitMEX response headers.
// It returns nil and no error when the headers are absent.
func ParseHeaders(headers http.Header, now time.Time) (*RateLimitState, error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil, nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	resetStr := headers.Get(HeaderReset)
	if resetStr == "" {
		return nil, errors.New(HeaderReset + " header missing")
	}

	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s header: %w", HeaderReset, err)
	}

	limit := DefaultLimit
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			return nil, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	state := &RateLimitState{
		Limit:      limit,
		Remaining:  remaining,
		ResetAt:    time.Unix(resetEpoch, 0),
		LastUpdate: now,
	}
	state.UpdateHealth()

	return state, nil
}

// UpdateFromHeaders parses BitMEX rate limit headers and stores the state in Redis.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, err := ParseHeaders(headers, time.Now())
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	// Keys expire shortly after the window refills.
	ttl := state.TimeUntilReset() + time.Minute

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRemaining, state.Remaining, ttl)
	pipe.Set(ctx, RedisKeyLimit, state.Limit, ttl)
	pipe.Set(ctx, RedisKeyResetTimestamp, state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}

	bitmexRequestsRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("BitMEX rate limit exhausted - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("BitMEX rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Bool("is_healthy", state.IsHealthy).
			Msg("BitMEX rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current state.
// It returns false when the budget is exhausted and delays by ThrottleDelay
// when the budget is low.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Error().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("BitMEX rate limit exhausted - blocking request")

		bitmexRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Msg("BitMEX rate limit low - throttling request")

		bitmexRateLimitThrottlesTotal.Inc()

		timer := time.NewTimer(ThrottleDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	return true, nil
}

func parseStored(v interface{}) (int, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	return strconv.Atoi(s)
}

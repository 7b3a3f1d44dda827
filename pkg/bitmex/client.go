// Package bitmex provides the BitMEX public REST client used to fetch
// composite index quotes, with request pacing, rate limit tracking and
// error classification.
package bitmex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/pagination"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/ratelimit"
)

const (
	// DefaultBaseURL is the production BitMEX REST host.
	DefaultBaseURL = "https://www.bitmex.com"

	// CompositeIndexPath is the endpoint serving composite index samples.
	CompositeIndexPath = "/api/v1/instrument/compositeIndex"

	// QuoteColumns limits each row to what the outcome mapper needs.
	QuoteColumns = "lastPrice,timestamp"

	// maxErrorBody bounds how much of an error response is read into the message.
	maxErrorBody = 4096
)

// Prometheus metrics for BitMEX client operations.
var (
	bitmexRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmex_requests_total",
		Help: "Total BitMEX requests by endpoint and status",
	}, []string{"endpoint", "status"})

	bitmexRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bitmex_request_duration_seconds",
		Help:    "BitMEX request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	bitmexErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmex_errors_total",
		Help: "Total BitMEX errors by class",
	}, []string{"class"})

	bitmexQuotesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bitmex_quotes_fetched_total",
		Help: "Total composite index quotes decoded by symbol",
	}, []string{"symbol"})
)

// RateLimiter gates requests on the remote request budget.
// *ratelimit.Tracker implements it.
type RateLimiter interface {
	ShouldAllowRequest(ctx context.Context) (bool, error)
	UpdateFromHeaders(ctx context.Context, headers http.Header) error
}

// Client fetches composite index quotes from BitMEX.
type Client struct {
	httpClient  *http.Client
	pacer       *rate.Limiter
	rateLimiter RateLimiter
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the REST API, without trailing slash.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per HTTP request. Zero leaves the transport default.
	Timeout time.Duration

	// RequestsPerMinute paces requests locally. Zero disables pacing.
	RequestsPerMinute int

	// Redis enables shared rate limit tracking when set.
	Redis *redis.Client
}

// DefaultConfig returns a configuration matching the unauthenticated BitMEX limits.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		UserAgent:         userAgent,
		Timeout:           30 * time.Second,
		RequestsPerMinute: 30,
	}
}

// New creates a new BitMEX client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.RequestsPerMinute < 0 {
		return nil, fmt.Errorf("requests_per_minute must be >= 0 (got %d)", cfg.RequestsPerMinute)
	}

	logger := log.With().Str("component", "bitmex-client").Logger()

	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		pacer = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	var rateLimiter RateLimiter
	if cfg.Redis != nil {
		rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pacer:       pacer,
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      logger,
	}, nil
}

// PageURL builds the compositeIndex request URL for one page.
func (c *Client) PageURL(idx index.Index, granularity Granularity, page pagination.Page) string {
	query := url.Values{}
	query.Set("symbol", "."+idx.Symbol())
	query.Set("filter", granularity.Filter(idx))
	query.Set("columns", QuoteColumns)
	query.Set("reverse", "true")
	query.Set("count", strconv.Itoa(page.Count))
	query.Set("start", strconv.Itoa(page.Offset))

	return c.config.BaseURL + CompositeIndexPath + "?" + query.Encode()
}

// FetchPage retrieves one page of quotes, newest first as BitMEX returns
// them with reverse=true. Failures are *APIError values matching ErrTransport
// or ErrDecode.
func (c *Client) FetchPage(ctx context.Context, idx index.Index, granularity Granularity, page pagination.Page) ([]Quote, error) {
	endpoint := CompositeIndexPath

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "pacing wait", Err: err}
	}

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			return nil, &APIError{ErrorClass: ErrorClassRateLimit, Message: "rate limit check", Err: err}
		}
		if !allowed {
			c.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limiter")
			bitmexRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			bitmexErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &APIError{ErrorClass: ErrorClassRateLimit, Message: "request blocked: rate limit exhausted"}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(idx, granularity, page), nil)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("index", idx.String()).
		Int("count", page.Count).
		Int("offset", page.Offset).
		Msg("Executing BitMEX request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	bitmexRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		bitmexErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		bitmexRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	bitmexRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errClass := classifyStatus(resp.StatusCode)
		bitmexErrorsTotal.WithLabelValues(string(errClass)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Message:    errorMessage(resp.Status, body),
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("BitMEX request error")

		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		bitmexErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}

	quotes, err := decodeQuotes(body)
	if err != nil {
		bitmexErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassDecode, Message: "decode quotes", Err: err}
	}

	bitmexQuotesFetchedTotal.WithLabelValues(idx.Symbol()).Add(float64(len(quotes)))

	c.logger.Debug().
		Int("quotes", len(quotes)).
		Int("offset", page.Offset).
		Dur("duration", time.Since(startTime)).
		Msg("BitMEX page fetched")

	return quotes, nil
}

// errorMessage prefers the message from a BitMEX error envelope
// ({"error":{"message":"...","name":"..."}}) over the bare status line.
func errorMessage(status string, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Name    string `json:"name"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Name != "" {
			return status + ": " + envelope.Error.Name + ": " + envelope.Error.Message
		}
		return status + ": " + envelope.Error.Message
	}
	return status
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetRateLimiter replaces the rate limit tracker (for testing).
func (c *Client) SetRateLimiter(rl RateLimiter) {
	c.rateLimiter = rl
}

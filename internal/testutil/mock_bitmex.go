// Package testutil provides testing utilities for the outcome feeder.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// CompositeIndexPath mirrors bitmex.CompositeIndexPath without importing it.
const CompositeIndexPath = "/api/v1/instrument/compositeIndex"

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockQuote is one compositeIndex row served by the mock.
type MockQuote struct {
	Timestamp string  `json:"timestamp"`
	LastPrice float64 `json:"lastPrice"`
}

// MockBitMEX is a configurable mock of the BitMEX REST API.
// Quotes registered with SetQuotes are served newest first and sliced by the
// count and start query parameters, the way the real endpoint does with
// reverse=true.
type MockBitMEX struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	quotes   map[string][]MockQuote

	// Tracking
	RequestCount  int
	Queries       []url.Values
	LastUserAgent string
}

// NewMockBitMEX creates and starts a mock BitMEX server.
func NewMockBitMEX() *MockBitMEX {
	mock := &MockBitMEX{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		quotes:   make(map[string][]MockQuote),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.LastUserAgent = r.Header.Get("User-Agent")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBitMEX) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBitMEX) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBitMEX) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Queries = nil
	m.LastUserAgent = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBitMEX) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockBitMEX) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetQuotes registers rows for a symbol such as ".BXBT", newest first.
func (m *MockBitMEX) SetQuotes(symbol string, quotes []MockQuote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = quotes
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBitMEX) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetQueries returns a copy of the query strings received so far.
func (m *MockBitMEX) GetQueries() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]url.Values, len(m.Queries))
	copy(out, m.Queries)
	return out
}

// defaultHandler serves registered quotes from the compositeIndex path.
func (m *MockBitMEX) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setRateLimitHeaders(w, 29)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.URL.Path != CompositeIndexPath {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Not Found","name":"HTTPError"}}`))
		return
	}

	query := r.URL.Query()
	count, _ := strconv.Atoi(query.Get("count"))
	start, _ := strconv.Atoi(query.Get("start"))

	m.mu.RLock()
	rows := m.quotes[query.Get("symbol")]
	m.mu.RUnlock()

	page := []MockQuote{}
	if start < len(rows) {
		end := start + count
		if end > len(rows) {
			end = len(rows)
		}
		page = rows[start:end]
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(page)
}

// GenerateQuotes builds n on-the-minute rows ending at latest, newest first.
func GenerateQuotes(latest time.Time, n int, step time.Duration, price func(i int) float64) []MockQuote {
	quotes := make([]MockQuote, 0, n)
	for i := 0; i < n; i++ {
		quotes = append(quotes, MockQuote{
			Timestamp: latest.Add(-time.Duration(i) * step).UTC().Format("2006-01-02T15:04:05.000Z"),
			LastPrice: price(i),
		})
	}
	return quotes
}

// NewHealthyResponse creates a standard 200 OK response with rate limit headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers:    withJSON(rateLimitHeaders(29)),
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error":{"message":"Rate limit exceeded, retry in 1 seconds.","name":"RateLimitError"}}`,
		Headers:    withJSON(rateLimitHeaders(0)),
	}
}

// NewServerErrorResponse creates a 503 response as BitMEX sends under load.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       `{"error":{"message":"The system is currently overloaded. Please try again later.","name":"HTTPError"}}`,
		Headers:    withJSON(rateLimitHeaders(28)),
	}
}

// NewMalformedResponse creates a 200 OK response whose body is not a quote array.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"unexpected": "object"}`,
		Headers:    withJSON(rateLimitHeaders(29)),
	}
}

func rateLimitHeaders(remaining int) map[string]string {
	return map[string]string{
		"X-Ratelimit-Limit":     "30",
		"X-Ratelimit-Remaining": strconv.Itoa(remaining),
		"X-Ratelimit-Reset":     fmt.Sprintf("%d", time.Now().Add(time.Minute).Unix()),
	}
}

func setRateLimitHeaders(w http.ResponseWriter, remaining int) {
	for k, v := range rateLimitHeaders(remaining) {
		w.Header().Set(k, v)
	}
}

func withJSON(headers map[string]string) map[string]string {
	headers["Content-Type"] = "application/json; charset=utf-8"
	return headers
}

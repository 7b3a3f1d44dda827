package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPush_EmptyURLIsNoop(t *testing.T) {
	if err := Push(context.Background(), "", DefaultJob, nil); err != nil {
		t.Errorf("Push() with empty url error = %v", err)
	}
}

func TestPush_SendsToGateway(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gateway.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_pushed_total",
		Help: "Counter pushed in tests",
	})
	registry.MustRegister(counter)
	counter.Add(3)

	previous := Gatherer
	Gatherer = registry
	defer func() { Gatherer = previous }()

	if err := Push(context.Background(), gateway.URL, "", map[string]string{"index": "BTC"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if method != http.MethodPut {
		t.Errorf("method = %s, want PUT", method)
	}
	if path != "/metrics/job/outcome_feeder/index/BTC" {
		t.Errorf("path = %s", path)
	}
	if !strings.Contains(body, "test_pushed_total") {
		t.Error("pushed body should contain the registered counter")
	}
}

func TestPush_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	previous := Gatherer
	Gatherer = prometheus.NewRegistry()
	defer func() { Gatherer = previous }()

	if err := Push(context.Background(), gateway.URL, DefaultJob, nil); err == nil {
		t.Error("Push() should fail on a 500 from the gateway")
	}
}

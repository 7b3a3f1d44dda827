// Package metrics documents the feeder's Prometheus metrics and pushes them to
// a Pushgateway at the end of a run. Metrics are declared with promauto in the
// packages that own them (bitmex, ratelimit, queue, feeder).
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Gatherer is what Push collects from.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// DefaultJob is the Pushgateway job name.
const DefaultJob = "outcome_feeder"

// Push sends every gathered metric to the Pushgateway at url, replacing the
// previous push for the same job and grouping. An empty url is a no-op, so
// runs without a gateway skip it.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	if url == "" {
		return nil
	}
	if job == "" {
		job = DefaultJob
	}

	pusher := push.New(url, job).Gatherer(Gatherer)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Metrics Documentation
//
// BitMEX client (pkg/bitmex):
//   - bitmex_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - bitmex_request_duration_seconds{endpoint} (Histogram): Request duration
//   - bitmex_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//   - bitmex_quotes_fetched_total{symbol} (Counter): Quotes decoded per index symbol
//
// Rate limit (pkg/ratelimit):
//   - bitmex_rate_limit_remaining (Gauge): Requests left in the current window
//   - bitmex_rate_limit_blocks_total (Counter): Requests blocked on an exhausted budget
//   - bitmex_rate_limit_throttles_total (Counter): Requests delayed on a low budget
//
// Queue (pkg/queue):
//   - outcome_records_published_total{queue} (Counter): Records appended per queue
//   - outcome_queue_errors_total{operation} (Counter): Failed queue operations
//
// Runs (pkg/feeder):
//   - outcome_feeder_runs_total{index, result} (Counter): Runs by outcome
//   - outcome_feeder_run_duration_seconds{index} (Histogram): Run duration
//   - outcome_feeder_last_success_timestamp_seconds{index} (Gauge): Last successful run
//
// Example Prometheus Queries:
//
//   # Feeder stalled for an index
//   time() - outcome_feeder_last_success_timestamp_seconds > 3 * 3600
//
//   # BitMEX error rate by class
//   rate(bitmex_errors_total[1h])
//
//   # Records published per run
//   increase(outcome_records_published_total[1h])

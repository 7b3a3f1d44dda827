// Package queue appends outcome records to a Redis list consumed downstream.
package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/outcome"
)

var (
	// RecordsPublished tracks records appended by queue name.
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcome_records_published_total",
			Help: "Total number of outcome records appended to a queue",
		},
		[]string{"queue"},
	)

	// QueueErrors tracks failed queue operations.
	QueueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outcome_queue_errors_total",
			Help: "Total number of queue operation errors",
		},
		[]string{"operation"}, // "connect", "publish", "len"
	)
)

// QueueError reports a failed operation against the queue store.
type QueueError struct {
	Op    string
	Queue string
	Err   error
}

// Error implements the error interface.
func (e *QueueError) Error() string {
	if e.Queue != "" {
		return fmt.Sprintf("queue %s %q: %v", e.Op, e.Queue, e.Err)
	}
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *QueueError) Unwrap() error {
	return e.Err
}

// Publisher appends records to Redis lists.
type Publisher struct {
	redis *redis.Client
}

// NewPublisher creates a publisher on an existing Redis client.
func NewPublisher(redisClient *redis.Client) *Publisher {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Publisher{
		redis: redisClient,
	}
}

// Connect builds a Redis client from a redis:// or rediss:// URL, or a bare
// host:port, and verifies it with PING.
func Connect(ctx context.Context, conn string) (*redis.Client, error) {
	opts, err := ParseConnString(conn)
	if err != nil {
		QueueErrors.WithLabelValues("connect").Inc()
		return nil, &QueueError{Op: "connect", Err: err}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		QueueErrors.WithLabelValues("connect").Inc()
		return nil, &QueueError{Op: "connect", Err: fmt.Errorf("ping %s: %w", opts.Addr, err)}
	}

	return client, nil
}

// ParseConnString turns a connection string into go-redis options.
func ParseConnString(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, fmt.Errorf("connection string is empty")
	}
	if strings.Contains(conn, "://") {
		opts, err := redis.ParseURL(conn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: conn}, nil
}

// Publish appends all records to the list in a single RPUSH, preserving order,
// and returns the list length after the push. An empty batch sends nothing.
func (p *Publisher) Publish(ctx context.Context, queueName string, records []outcome.Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	values := make([]interface{}, len(records))
	for i, rec := range records {
		values[i] = rec
	}

	length, err := p.redis.RPush(ctx, queueName, values...).Result()
	if err != nil {
		QueueErrors.WithLabelValues("publish").Inc()
		return 0, &QueueError{Op: "publish", Queue: queueName, Err: err}
	}

	RecordsPublished.WithLabelValues(queueName).Add(float64(len(records)))

	return length, nil
}

// Len returns the current length of the list.
func (p *Publisher) Len(ctx context.Context, queueName string) (int64, error) {
	n, err := p.redis.LLen(ctx, queueName).Result()
	if err != nil {
		QueueErrors.WithLabelValues("len").Inc()
		return 0, &QueueError{Op: "len", Queue: queueName, Err: err}
	}
	return n, nil
}

//go:build integration

package bitmex

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/bitmex-outcome-feeder/internal/testutil"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/pagination"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_RateLimitSharedAcrossClients(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockBitMEX()
	defer mock.Close()
	mock.SetResponse(testutil.CompositeIndexPath, testutil.NewRateLimitResponse())

	cfg := DefaultConfig("TestApp/1.0.0 (integration@test.com)")
	cfg.BaseURL = mock.URL()
	cfg.RequestsPerMinute = 0
	cfg.Redis = redisClient

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// 429 with remaining=0 is recorded in Redis
	_, err = first.FetchPage(ctx, index.BTC, Minute, pagination.Page{Count: 1})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("first FetchPage() error = %v, want ErrTransport", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Fatalf("server saw %d requests, want 1", mock.GetRequestCount())
	}

	// A second client (next cron run) sees the exhausted budget and never calls out
	second, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = second.FetchPage(ctx, index.BTC, Minute, pagination.Page{Count: 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassRateLimit {
		t.Fatalf("second FetchPage() error = %v, want rate_limit APIError", err)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("blocked request reached the server (%d requests)", mock.GetRequestCount())
	}
}

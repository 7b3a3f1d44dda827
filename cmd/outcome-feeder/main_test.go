package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Sternrassler/bitmex-outcome-feeder/internal/config"
	"github.com/Sternrassler/bitmex-outcome-feeder/internal/testutil"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/queue"
)

func noEnv(string) string { return "" }

func TestRun_UnknownIndexFailsBeforeNetwork(t *testing.T) {
	mock := testutil.NewMockBitMEX()
	defer mock.Close()

	stderr := &bytes.Buffer{}
	err := run(context.Background(), []string{
		"--index", "DOGE",
		"--api-url", mock.URL(),
		"--redis", "127.0.0.1:1",
	}, noEnv, stderr)

	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("run() error = %v, want *config.ConfigError", err)
	}
	if !errors.Is(err, index.ErrUnknownIndex) {
		t.Errorf("run() error = %v, want ErrUnknownIndex", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("BitMEX received %d requests before config validation", mock.GetRequestCount())
	}
}

func TestRun_QueueUnreachable(t *testing.T) {
	mock := testutil.NewMockBitMEX()
	defer mock.Close()

	err := run(context.Background(), []string{
		"--api-url", mock.URL(),
		"--redis", "127.0.0.1:1",
	}, noEnv, &bytes.Buffer{})

	var queueErr *queue.QueueError
	if !errors.As(err, &queueErr) {
		t.Fatalf("run() error = %v, want *queue.QueueError", err)
	}
	if mock.GetRequestCount() != 0 {
		t.Errorf("BitMEX received %d requests without a queue", mock.GetRequestCount())
	}
}

func TestRun_Help(t *testing.T) {
	stderr := &bytes.Buffer{}
	if err := run(context.Background(), []string{"-h"}, noEnv, stderr); err != nil {
		t.Fatalf("run(-h) error = %v", err)
	}
	if !strings.Contains(stderr.String(), "-hours") {
		t.Errorf("usage output missing flags: %q", stderr.String())
	}
}

// Command outcome-feeder fetches BitMEX composite index samples for a lookback
// window and appends them as outcome records to a Redis list. It runs once and
// exits; schedule it with cron or a Kubernetes CronJob.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/bitmex-outcome-feeder/internal/config"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/bitmex"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/feeder"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/logging"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/metrics"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/queue"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Getenv, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "outcome-feeder: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) error {
	cfg, err := config.Load(args, getenv, stderr)
	if err != nil {
		if config.IsHelp(err) {
			return nil
		}
		return err
	}

	_, closer := logging.Setup(cfg.LoggingConfig(stderr))
	defer closer.Close()

	logger := logging.NewLogger("outcome-feeder").With().
		Str("run_id", uuid.NewString()).
		Str("index", cfg.IndexValue().String()).
		Logger()

	redisClient, err := queue.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to connect to queue store")
		return err
	}
	defer redisClient.Close()

	clientCfg := bitmex.Config{
		BaseURL:           cfg.API.BaseURL,
		UserAgent:         cfg.API.UserAgent,
		Timeout:           cfg.API.Timeout,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
	}
	if cfg.API.TrackRateLimit {
		clientCfg.Redis = redisClient
	}

	client, err := bitmex.New(clientCfg)
	if err != nil {
		return fmt.Errorf("create bitmex client: %w", err)
	}

	f := feeder.New(client, queue.NewPublisher(redisClient), logger)

	summary, runErr := f.Run(ctx, feeder.Job{
		Index:         cfg.IndexValue(),
		Granularity:   cfg.GranularityValue(),
		LookbackHours: cfg.LookbackHours,
		Queue:         cfg.Queue,
		PageSize:      cfg.PageSize,
	})

	grouping := map[string]string{"index": cfg.IndexValue().String()}
	if err := metrics.Push(ctx, cfg.Pushgateway, metrics.DefaultJob, grouping); err != nil {
		logger.Warn().Err(err).Msg("Failed to push metrics")
	}

	if runErr != nil {
		logger.Error().
			Err(runErr).
			Int("quotes", summary.Quotes).
			Dur("duration", summary.Duration).
			Msg("Run failed - nothing published")
		return runErr
	}

	fmt.Fprintf(stderr, "published %d outcomes to %s (%d pages, %s)\n",
		summary.Published, cfg.Queue, summary.Pages, summary.Duration.Round(time.Millisecond))

	return nil
}

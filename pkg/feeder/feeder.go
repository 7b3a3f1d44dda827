// Package feeder runs one fetch-map-publish cycle: it pages through the
// composite index samples of a lookback window, converts them into outcome
// records and appends the whole batch to a queue in a single command.
package feeder

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/bitmex"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/outcome"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/pagination"
)

// Prometheus metrics for feeder runs.
var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outcome_feeder_runs_total",
		Help: "Feeder runs by index and result",
	}, []string{"index", "result"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outcome_feeder_run_duration_seconds",
		Help:    "Duration of a full feeder run by index",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"index"})

	lastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outcome_feeder_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run by index",
	}, []string{"index"})
)

// QuoteSource fetches one page of quotes. *bitmex.Client implements it.
type QuoteSource interface {
	FetchPage(ctx context.Context, idx index.Index, granularity bitmex.Granularity, page pagination.Page) ([]bitmex.Quote, error)
}

// Publisher appends a batch to a named queue. *queue.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, queueName string, records []outcome.Record) (int64, error)
}

// Job describes one run.
type Job struct {
	Index         index.Index
	Granularity   bitmex.Granularity
	LookbackHours int
	Queue         string

	// PageSize defaults to pagination.MaxPageSize when zero.
	PageSize int
}

// TotalResults is the number of samples covering the lookback window.
func (j Job) TotalResults() int {
	return j.LookbackHours * j.Granularity.SamplesPerHour()
}

// Validate checks the job before any request is made.
func (j Job) Validate() error {
	if !j.Index.Valid() {
		return fmt.Errorf("invalid index %v", j.Index)
	}
	if j.Granularity != bitmex.Minute && j.Granularity != bitmex.Hour {
		return fmt.Errorf("invalid granularity %q", j.Granularity)
	}
	if j.LookbackHours < 0 {
		return fmt.Errorf("lookback hours must be >= 0 (got %d)", j.LookbackHours)
	}
	if j.Queue == "" {
		return fmt.Errorf("queue name is required")
	}
	if j.PageSize < 0 || j.PageSize > pagination.MaxPageSize {
		return fmt.Errorf("page size must be in [0, %d], 0 for the maximum (got %d)", pagination.MaxPageSize, j.PageSize)
	}
	return nil
}

// Summary reports what a run did.
type Summary struct {
	Pages     int
	Quotes    int
	Published int
	QueueLen  int64
	Duration  time.Duration
}

// Feeder wires a quote source to a publisher.
type Feeder struct {
	source    QuoteSource
	publisher Publisher
	logger    zerolog.Logger
}

// New creates a feeder.
func New(source QuoteSource, publisher Publisher, logger zerolog.Logger) *Feeder {
	return &Feeder{
		source:    source,
		publisher: publisher,
		logger:    logger,
	}
}

// Run fetches every page of the job sequentially, maps the quotes and
// publishes them in one batch. Records keep page order and, within a page,
// the order BitMEX returned them. Any failure aborts the run before publish.
func (f *Feeder) Run(ctx context.Context, job Job) (Summary, error) {
	start := time.Now()
	label := job.Index.String()

	summary, err := f.run(ctx, job)
	summary.Duration = time.Since(start)
	runDuration.WithLabelValues(label).Observe(summary.Duration.Seconds())

	if err != nil {
		runsTotal.WithLabelValues(label, "failure").Inc()
		return summary, err
	}

	runsTotal.WithLabelValues(label, "success").Inc()
	lastSuccess.WithLabelValues(label).SetToCurrentTime()
	return summary, nil
}

func (f *Feeder) run(ctx context.Context, job Job) (Summary, error) {
	var summary Summary

	if err := job.Validate(); err != nil {
		return summary, fmt.Errorf("validate job: %w", err)
	}

	pageSize := job.PageSize
	if pageSize == 0 {
		pageSize = pagination.MaxPageSize
	}

	pages := pagination.Paginate(job.TotalResults(), pageSize)
	summary.Pages = len(pages)

	f.logger.Info().
		Str("index", job.Index.String()).
		Str("granularity", string(job.Granularity)).
		Int("lookback_hours", job.LookbackHours).
		Int("total_results", job.TotalResults()).
		Int("pages", len(pages)).
		Msg("Starting outcome fetch")

	records := make([]outcome.Record, 0, job.TotalResults())
	err := pagination.Walk(ctx, pages, func(ctx context.Context, page pagination.Page) error {
		quotes, err := f.source.FetchPage(ctx, job.Index, job.Granularity, page)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		summary.Quotes += len(quotes)

		mapped, err := outcome.MapQuotes(quotes, job.Index)
		if err != nil {
			return fmt.Errorf("map: %w", err)
		}
		records = append(records, mapped...)
		return nil
	})
	if err != nil {
		return summary, err
	}

	if len(records) == 0 {
		f.logger.Warn().
			Str("queue", job.Queue).
			Msg("No outcomes fetched - nothing published")
		return summary, nil
	}

	queueLen, err := f.publisher.Publish(ctx, job.Queue, records)
	if err != nil {
		return summary, fmt.Errorf("publish: %w", err)
	}
	summary.Published = len(records)
	summary.QueueLen = queueLen

	f.logger.Info().
		Str("queue", job.Queue).
		Int("published", summary.Published).
		Int64("queue_len", queueLen).
		Msg("Outcomes published")

	return summary, nil
}

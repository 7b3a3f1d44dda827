// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File additionally writes JSON logs to a rotating file when Path is set.
	File FileConfig
}

// FileConfig configures the rotating log file.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
		File: FileConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures the global zerolog logger. The returned closer flushes and
// closes the log file, if one is configured.
func Setup(cfg Config) (zerolog.Logger, io.Closer) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		// The file always gets JSON, regardless of Pretty.
		file := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		output = zerolog.MultiLevelWriter(output, file)
		closer = file
	}

	logger := zerolog.New(output).With().Timestamp().Logger()

	log.Logger = logger

	return logger, closer
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - BitMEX request/response (offset, count, duration)
//   - Rate limit state updates while healthy
//   - Page walk progress
//
// Info: one line per run phase
//   - Run start (index, granularity, lookback, pages)
//   - Walk complete
//   - Outcomes published (queue, count, queue length)
//
// Warn: degraded but continuing
//   - Rate limit throttling
//   - Rate limit header parse failures
//   - Empty fetch, nothing published
//
// Error: the run fails or is about to
//   - HTTP failures and non-2xx responses
//   - Rate limit exhausted, request blocked
//   - Queue connect/publish failures
//
// Context Fields:
//   - component: emitting package (bitmex-client, feeder, ...)
//   - run_id: per-invocation uuid
//   - index: selector (BTC, ETH)
//   - page, count, offset: page descriptor
//   - queue: target list name
//   - status, error_class: HTTP status and classification
//   - remaining: BitMEX requests left in the window

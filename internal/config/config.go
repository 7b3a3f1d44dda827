// Package config loads the feeder configuration from defaults, an optional
// YAML file, FEEDER_* environment variables and command-line flags, in that
// order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/bitmex"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/index"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/logging"
	"github.com/Sternrassler/bitmex-outcome-feeder/pkg/pagination"
)

// Config is the complete feeder configuration.
type Config struct {
	// Redis is a redis:// URL or host:port.
	Redis         string `yaml:"redis"`
	Queue         string `yaml:"queue"`
	Index         string `yaml:"index"`
	Granularity   string `yaml:"granularity"`
	LookbackHours int    `yaml:"lookback_hours"`
	PageSize      int    `yaml:"page_size"`

	API         APIConfig `yaml:"api"`
	Log         LogConfig `yaml:"log"`
	Pushgateway string    `yaml:"pushgateway"`
}

// APIConfig configures the BitMEX client.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	TrackRateLimit    bool          `yaml:"track_rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string             `yaml:"level"`
	Pretty bool               `yaml:"pretty"`
	File   logging.FileConfig `yaml:"file"`
}

// ConfigError reports an invalid setting. It is raised before any network activity.
type ConfigError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config %s=%q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Redis:         "redis://localhost:6379",
		Queue:         "outcomes",
		Index:         index.BTC.String(),
		Granularity:   string(bitmex.Minute),
		LookbackHours: 1,
		PageSize:      pagination.MaxPageSize,
		API: APIConfig{
			BaseURL:           bitmex.DefaultBaseURL,
			UserAgent:         "bitmex-outcome-feeder/0.1.0",
			Timeout:           30 * time.Second,
			RequestsPerMinute: 30,
			TrackRateLimit:    true,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
			File:  logging.DefaultConfig().File,
		},
	}
}

// flagValues holds everything that can be set on the command line.
type flagValues struct {
	configPath     string
	redis          string
	queue          string
	index          string
	granularity    string
	hours          int
	pageSize       int
	apiURL         string
	userAgent      string
	timeout        time.Duration
	rpm            int
	trackRateLimit bool
	logLevel       string
	logPretty      bool
	logFile        string
	pushgateway    string
}

func newFlagSet(name string, output io.Writer, v *flagValues) *flag.FlagSet {
	d := Default()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	fs.StringVar(&v.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&v.redis, "redis", d.Redis, "redis URL or host:port of the queue store")
	fs.StringVar(&v.queue, "queue", d.Queue, "list to append outcomes to")
	fs.StringVar(&v.index, "index", d.Index, "index to publish (BTC, ETH)")
	fs.StringVar(&v.granularity, "granularity", d.Granularity, "sample granularity (minute, hour)")
	fs.IntVar(&v.hours, "hours", d.LookbackHours, "lookback window in hours")
	fs.IntVar(&v.pageSize, "page-size", d.PageSize, "rows per request (max 500)")
	fs.StringVar(&v.apiURL, "api-url", d.API.BaseURL, "BitMEX REST base URL")
	fs.StringVar(&v.userAgent, "user-agent", d.API.UserAgent, "User-Agent header")
	fs.DurationVar(&v.timeout, "timeout", d.API.Timeout, "per-request HTTP timeout")
	fs.IntVar(&v.rpm, "rpm", d.API.RequestsPerMinute, "requests per minute (0 disables pacing)")
	fs.BoolVar(&v.trackRateLimit, "track-rate-limit", d.API.TrackRateLimit, "share BitMEX rate limit state via redis")
	fs.StringVar(&v.logLevel, "log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.BoolVar(&v.logPretty, "log-pretty", d.Log.Pretty, "human-readable console logs")
	fs.StringVar(&v.logFile, "log-file", "", "also write JSON logs to this rotating file")
	fs.StringVar(&v.pushgateway, "pushgateway", "", "Prometheus Pushgateway URL (empty disables)")

	return fs
}

// Load builds the configuration from args (without the program name) and the
// environment, then validates it.
func Load(args []string, getenv func(string) string, output io.Writer) (*Config, error) {
	var v flagValues
	fs := newFlagSet("outcome-feeder", output, &v)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	path := v.configPath
	if path == "" {
		path = getenv("FEEDER_CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		applyFlag(&cfg, &v, f.Name)
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile overlays a YAML file onto cfg. ${VAR} references are expanded.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return &ConfigError{Field: "config", Value: path, Reason: "parse yaml", Err: err}
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: key, Value: v, Reason: "not a boolean", Err: err}
		}
		*dst = b
		return nil
	}
	setInt := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: key, Value: v, Reason: "not an integer", Err: err}
		}
		*dst = n
		return nil
	}

	setString("FEEDER_REDIS", &cfg.Redis)
	setString("FEEDER_QUEUE", &cfg.Queue)
	setString("FEEDER_INDEX", &cfg.Index)
	setString("FEEDER_GRANULARITY", &cfg.Granularity)
	setString("FEEDER_API_URL", &cfg.API.BaseURL)
	setString("FEEDER_USER_AGENT", &cfg.API.UserAgent)
	setString("FEEDER_LOG_LEVEL", &cfg.Log.Level)
	setString("FEEDER_LOG_FILE", &cfg.Log.File.Path)
	setString("FEEDER_PUSHGATEWAY", &cfg.Pushgateway)

	if v := getenv("FEEDER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: "FEEDER_TIMEOUT", Value: v, Reason: "not a duration", Err: err}
		}
		cfg.API.Timeout = d
	}

	if err := setInt("FEEDER_LOOKBACK_HOURS", &cfg.LookbackHours); err != nil {
		return err
	}
	if err := setInt("FEEDER_PAGE_SIZE", &cfg.PageSize); err != nil {
		return err
	}
	if err := setInt("FEEDER_RPM", &cfg.API.RequestsPerMinute); err != nil {
		return err
	}
	if err := setBool("FEEDER_TRACK_RATE_LIMIT", &cfg.API.TrackRateLimit); err != nil {
		return err
	}
	return setBool("FEEDER_LOG_PRETTY", &cfg.Log.Pretty)
}

func applyFlag(cfg *Config, v *flagValues, name string) {
	switch name {
	case "redis":
		cfg.Redis = v.redis
	case "queue":
		cfg.Queue = v.queue
	case "index":
		cfg.Index = v.index
	case "granularity":
		cfg.Granularity = v.granularity
	case "hours":
		cfg.LookbackHours = v.hours
	case "page-size":
		cfg.PageSize = v.pageSize
	case "api-url":
		cfg.API.BaseURL = v.apiURL
	case "user-agent":
		cfg.API.UserAgent = v.userAgent
	case "timeout":
		cfg.API.Timeout = v.timeout
	case "rpm":
		cfg.API.RequestsPerMinute = v.rpm
	case "track-rate-limit":
		cfg.API.TrackRateLimit = v.trackRateLimit
	case "log-level":
		cfg.Log.Level = v.logLevel
	case "log-pretty":
		cfg.Log.Pretty = v.logPretty
	case "log-file":
		cfg.Log.File.Path = v.logFile
	case "pushgateway":
		cfg.Pushgateway = v.pushgateway
	}
}

// Validate checks every field. The first problem is returned as *ConfigError.
func (c *Config) Validate() error {
	if c.Redis == "" {
		return &ConfigError{Field: "redis", Reason: "connection string is required"}
	}
	if c.Queue == "" {
		return &ConfigError{Field: "queue", Reason: "queue name is required"}
	}
	if _, err := index.Parse(c.Index); err != nil {
		return &ConfigError{Field: "index", Value: c.Index, Reason: "unsupported index", Err: err}
	}
	if _, err := bitmex.ParseGranularity(c.Granularity); err != nil {
		return &ConfigError{Field: "granularity", Value: c.Granularity, Reason: err.Error(), Err: err}
	}
	if c.LookbackHours < 1 {
		return &ConfigError{Field: "lookback_hours", Value: strconv.Itoa(c.LookbackHours), Reason: "must be at least 1"}
	}
	if c.PageSize < 1 || c.PageSize > pagination.MaxPageSize {
		return &ConfigError{
			Field:  "page_size",
			Value:  strconv.Itoa(c.PageSize),
			Reason: fmt.Sprintf("must be in [1, %d]", pagination.MaxPageSize),
		}
	}
	if c.API.BaseURL == "" {
		return &ConfigError{Field: "api.base_url", Reason: "is required"}
	}
	if c.API.UserAgent == "" {
		return &ConfigError{Field: "api.user_agent", Reason: "is required"}
	}
	if c.API.Timeout < 0 {
		return &ConfigError{Field: "api.timeout", Value: c.API.Timeout.String(), Reason: "must not be negative"}
	}
	if c.API.RequestsPerMinute < 0 {
		return &ConfigError{Field: "api.requests_per_minute", Value: strconv.Itoa(c.API.RequestsPerMinute), Reason: "must not be negative"}
	}
	return nil
}

// IndexValue returns the parsed index. Call after Validate.
func (c *Config) IndexValue() index.Index {
	idx, err := index.Parse(c.Index)
	if err != nil {
		panic(err)
	}
	return idx
}

// GranularityValue returns the parsed granularity. Call after Validate.
func (c *Config) GranularityValue() bitmex.Granularity {
	g, err := bitmex.ParseGranularity(c.Granularity)
	if err != nil {
		panic(err)
	}
	return g
}

// LoggingConfig converts the log settings for logging.Setup.
func (c *Config) LoggingConfig(output io.Writer) logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Log.Level),
		Pretty: c.Log.Pretty,
		Output: output,
		File:   c.Log.File,
	}
}

// IsHelp reports whether err came from -h/--help.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

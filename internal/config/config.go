package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/crimson-sun/grouping/internal/output"
)

// Prefix is prepended to every environment variable name.
const Prefix = "GROUPING_"

// Config holds all grouping service configuration.
type Config struct {
	Mode            string        `env:"MODE" envDefault:"stream"` // "stream" or "query"
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MetricsAddr     string        `env:"METRICS_ADDR"` // empty disables the metrics server

	Connector ConnectorConfig
	Rules     RulesConfig
	Engine    EngineConfig
	Output    OutputConfig
	Query     QueryConfig
}

// ConnectorConfig holds connector-specific settings.
type ConnectorConfig struct {
	Provider string `env:"CONNECTOR" envDefault:"file"`
	APIKey   string `env:"API_KEY"`
	Endpoint string `env:"ENDPOINT"`

	SentryOrg     string `env:"SENTRY_ORG"`
	SentryProject string `env:"SENTRY_PROJECT"`
	PollInterval  string `env:"POLL_INTERVAL"`
	Follow        string `env:"FOLLOW"`

	// Extra is assembled from the provider-specific fields above.
	Extra map[string]string
}

// RulesConfig locates the fingerprinting rules.
type RulesConfig struct {
	Patterns  []string `env:"RULES" envSeparator:","` // doublestar globs
	Watch     bool     `env:"RULES_WATCH" envDefault:"true"`
	CacheSize int      `env:"RULE_CACHE_SIZE" envDefault:"64"`
}

// EngineConfig holds grouping engine settings.
type EngineConfig struct {
	DedupWindow   time.Duration `env:"DEDUP_WINDOW" envDefault:"5s"` // 0 disables dedup
	MaxBufferSize int           `env:"MAX_BUFFER_SIZE" envDefault:"1000"`
}

// OutputConfig holds output destination settings.
type OutputConfig struct {
	Targets        []string          `env:"OUTPUT" envSeparator:"," envDefault:"stdout"` // stdout, file, webhook
	Verbosity      string            `env:"VERBOSITY" envDefault:"standard"`
	Pretty         bool              `env:"OUTPUT_PRETTY"`
	FilePath       string            `env:"OUTPUT_FILE"`
	FileMaxSize    int64             `env:"OUTPUT_FILE_MAX_SIZE"`
	WebhookURL     string            `env:"WEBHOOK_URL"`
	WebhookHeaders map[string]string `env:"WEBHOOK_HEADERS"` // "Key:Value,Key2:Value2"
	Async          bool              `env:"OUTPUT_ASYNC"`
}

// QueryConfig bounds query mode.
type QueryConfig struct {
	From   time.Time `env:"QUERY_FROM"` // RFC 3339
	To     time.Time `env:"QUERY_TO"`
	Limit  int       `env:"QUERY_LIMIT"`
	Filter string    `env:"QUERY_FILTER"`
}

// Load reads configuration from GROUPING_* environment variables, after
// loading a .env file from the working directory when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Connector.Extra = cfg.Connector.extra()
	return cfg, nil
}

// extra maps the provider-specific settings to connector Extra keys.
// It returns nil when none is set.
func (c ConnectorConfig) extra() map[string]string {
	vars := []struct {
		value    string
		extraKey string
	}{
		{c.SentryOrg, "org"},
		{c.SentryProject, "project"},
		{c.PollInterval, "poll_interval"},
		{c.Follow, "follow"},
	}

	var m map[string]string
	for _, v := range vars {
		if v.value != "" {
			if m == nil {
				m = make(map[string]string)
			}
			m[v.extraKey] = v.value
		}
	}
	return m
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c Config) Validate() error {
	var errs []error

	switch c.Mode {
	case "stream", "query":
	default:
		errs = append(errs, fmt.Errorf("mode must be stream or query, got %q", c.Mode))
	}

	switch c.Connector.Provider {
	case "file":
	case "sentry":
		if c.Connector.APIKey == "" {
			errs = append(errs, fmt.Errorf("%sAPI_KEY is required for the sentry connector", Prefix))
		}
		if c.Connector.SentryOrg == "" || c.Connector.SentryProject == "" {
			errs = append(errs, fmt.Errorf("%sSENTRY_ORG and %sSENTRY_PROJECT are required for the sentry connector", Prefix, Prefix))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown connector %q", c.Connector.Provider))
	}

	if c.Connector.PollInterval != "" {
		if d, err := time.ParseDuration(c.Connector.PollInterval); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("poll interval must be a positive duration, got %q", c.Connector.PollInterval))
		}
	}

	if c.Rules.CacheSize < 1 {
		errs = append(errs, fmt.Errorf("rule cache size must be positive, got %d", c.Rules.CacheSize))
	}

	if c.Engine.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("dedup window must be non-negative, got %v", c.Engine.DedupWindow))
	}
	if c.Engine.MaxBufferSize < 0 {
		errs = append(errs, fmt.Errorf("max buffer size must be non-negative, got %d", c.Engine.MaxBufferSize))
	}

	if _, err := output.ParseVerbosity(c.Output.Verbosity); err != nil {
		errs = append(errs, err)
	}
	if len(c.Output.Targets) == 0 {
		errs = append(errs, errors.New("at least one output is required"))
	}
	for _, target := range c.Output.Targets {
		switch strings.TrimSpace(target) {
		case "stdout":
		case "file":
			if c.Output.FilePath == "" {
				errs = append(errs, fmt.Errorf("%sOUTPUT_FILE is required for the file output", Prefix))
			}
		case "webhook":
			if c.Output.WebhookURL == "" {
				errs = append(errs, fmt.Errorf("%sWEBHOOK_URL is required for the webhook output", Prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown output %q", target))
		}
	}

	if !c.Query.From.IsZero() && !c.Query.To.IsZero() && !c.Query.From.Before(c.Query.To) {
		errs = append(errs, fmt.Errorf("query from %s must be before to %s", c.Query.From.Format(time.RFC3339), c.Query.To.Format(time.RFC3339)))
	}
	if c.Query.Limit < 0 {
		errs = append(errs, fmt.Errorf("query limit must be non-negative, got %d", c.Query.Limit))
	}

	return errors.Join(errs...)
}

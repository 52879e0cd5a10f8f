package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/grouping/internal/config"
	"github.com/crimson-sun/grouping/internal/connector"
	"github.com/crimson-sun/grouping/internal/engine"
	"github.com/crimson-sun/grouping/internal/engine/dedup"
	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
	"github.com/crimson-sun/grouping/internal/engine/rulecache"
	"github.com/crimson-sun/grouping/internal/logging"
	"github.com/crimson-sun/grouping/internal/metrics"
	"github.com/crimson-sun/grouping/internal/output"
	"github.com/crimson-sun/grouping/internal/output/async"
	"github.com/crimson-sun/grouping/internal/output/file"
	"github.com/crimson-sun/grouping/internal/output/multi"
	"github.com/crimson-sun/grouping/internal/output/stdout"
	"github.com/crimson-sun/grouping/internal/output/webhook"
	"github.com/crimson-sun/grouping/internal/pipeline"
	"github.com/crimson-sun/grouping/internal/rulesource"

	// Register connector implementations.
	_ "github.com/crimson-sun/grouping/internal/connector/file"
	_ "github.com/crimson-sun/grouping/internal/connector/sentry"
)

func newStreamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Group events from a connector as they arrive",
		Long: `Stream groups events from the configured connector until interrupted,
writing them to the configured outputs. Rule files are reloaded when they
change.

Configuration comes from GROUPING_* environment variables, read after
loading a .env file from the working directory.

Examples:
  GROUPING_RULES="rules/**/*.rules" GROUPING_ENDPOINT=- grouping stream < events.ndjson
  GROUPING_CONNECTOR=sentry GROUPING_SENTRY_ORG=acme GROUPING_SENTRY_PROJECT=web grouping stream`,
		Args: cobra.NoArgs,
		RunE: runMode("stream"),
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query",
		Short: "Group one batch of historical events and exit",
		Long: `Query fetches the events between GROUPING_QUERY_FROM and
GROUPING_QUERY_TO from the configured connector, groups them and writes
them to the configured outputs.

Example:
  GROUPING_RULES=app.rules GROUPING_ENDPOINT=events.ndjson GROUPING_QUERY_LIMIT=500 grouping query`,
		Args: cobra.NoArgs,
		RunE: runMode("query"),
	}
}

// runMode loads the environment configuration and runs it in mode.
func runMode(mode string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Mode = mode
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	verbosity, _ := output.ParseVerbosity(cfg.Output.Verbosity)
	logging.Init(writesStdout(cfg.Output.Targets), logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := rulecache.New(cfg.Rules.CacheSize)
	if err != nil {
		return fmt.Errorf("creating rule cache: %w", err)
	}
	var (
		src *rulesource.Source
		rs  *fingerprinting.Rules
	)
	if len(cfg.Rules.Patterns) > 0 {
		src = rulesource.New(cfg.Rules.Patterns, rulesource.WithCompiler(cache.Get))
		rs, err = src.Load()
		if err != nil {
			return fmt.Errorf("loading rules: %w", err)
		}
		slog.Info("rules loaded", "rules", len(rs.Rules))
	} else {
		slog.Warn("no rules configured, every event gets its default grouping")
	}

	var engineOpts []engine.Option
	if verbosity != output.Full {
		engineOpts = append(engineOpts, engine.WithoutPayload())
	}
	eng := engine.New(rs, engineOpts...)

	out, err := buildOutput(cfg.Output, verbosity)
	if err != nil {
		return err
	}

	ctor, err := connector.Get(cfg.Connector.Provider)
	if err != nil {
		out.Close()
		return err
	}

	var pipeOpts []pipeline.Option
	if cfg.Engine.DedupWindow > 0 {
		pipeOpts = append(pipeOpts,
			pipeline.WithDedup(dedup.New(dedup.Config{Window: cfg.Engine.DedupWindow}), cfg.Engine.DedupWindow),
			pipeline.WithMaxBufferSize(cfg.Engine.MaxBufferSize),
		)
	}
	p := pipeline.New(ctor(), eng, out, pipeOpts...)

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		slog.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	connCfg := connector.ConnectorConfig{
		Provider: cfg.Connector.Provider,
		APIKey:   cfg.Connector.APIKey,
		Endpoint: cfg.Connector.Endpoint,
		Extra:    cfg.Connector.Extra,
	}
	slog.Info("starting",
		"mode", cfg.Mode,
		"connector", cfg.Connector.Provider,
		"outputs", strings.Join(cfg.Output.Targets, ","),
		"verbosity", verbosity.String(),
	)

	var runErr error
	switch cfg.Mode {
	case "query":
		runErr = p.Query(ctx, connCfg, connector.QueryParams{
			Start:  cfg.Query.From,
			End:    cfg.Query.To,
			Limit:  cfg.Query.Limit,
			Filter: cfg.Query.Filter,
		})
	default:
		if src != nil && cfg.Rules.Watch {
			go func() {
				if err := src.Watch(ctx, func(rs *fingerprinting.Rules) { p.SetRules(rs) }); err != nil {
					slog.Error("rule watcher stopped", "error", err)
				}
			}()
		}
		runErr = p.Stream(ctx, connCfg)
		if errors.Is(runErr, context.Canceled) {
			runErr = nil
		}
	}

	closeErr := closeWithTimeout(p, cfg.ShutdownTimeout)
	slog.Info("stopped", "skipped", p.Skipped())
	return errors.Join(runErr, closeErr)
}

// buildOutput creates the configured outputs, fanned out when there are
// several.
func buildOutput(cfg config.OutputConfig, verbosity output.Verbosity) (output.Output, error) {
	var outs []output.Output
	for _, target := range cfg.Targets {
		var out output.Output
		switch strings.TrimSpace(target) {
		case "stdout":
			out = stdout.New(verbosity, cfg.Pretty)
		case "file":
			var opts []file.Option
			if cfg.FileMaxSize > 0 {
				opts = append(opts, file.WithMaxSize(cfg.FileMaxSize))
			}
			f, err := file.New(cfg.FilePath, verbosity, opts...)
			if err != nil {
				multi.New(outs...).Close()
				return nil, err
			}
			out = f
		case "webhook":
			out = webhook.New(cfg.WebhookURL,
				webhook.WithHeaders(cfg.WebhookHeaders),
				webhook.WithVerbosity(verbosity),
				webhook.WithOnError(func(err error) {
					slog.Error("webhook delivery failed", "error", err)
				}),
			)
		default:
			multi.New(outs...).Close()
			return nil, fmt.Errorf("unknown output %q", target)
		}
		outs = append(outs, out)
	}
	if len(outs) == 0 {
		return nil, errors.New("no outputs configured")
	}

	var out output.Output = multi.New(outs...)
	if len(outs) == 1 {
		out = outs[0]
	}
	if cfg.Async {
		out = async.New(out, async.WithOnError(func(err error) {
			slog.Error("async output write failed", "error", err)
		}))
	}
	return out, nil
}

func writesStdout(targets []string) bool {
	for _, t := range targets {
		if strings.TrimSpace(t) == "stdout" {
			return true
		}
	}
	return false
}

// closeWithTimeout closes the pipeline, giving up after d.
func closeWithTimeout(p *pipeline.Pipeline, d time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- p.Close() }()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("shutdown timed out after %v", d)
	}
}

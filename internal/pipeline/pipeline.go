package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/grouping/internal/connector"
	"github.com/crimson-sun/grouping/internal/engine/dedup"
	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
	"github.com/crimson-sun/grouping/internal/model"
	"github.com/crimson-sun/grouping/internal/output"
)

// Processor groups raw events. *engine.Engine implements it.
type Processor interface {
	Process(raw model.RawEvent) (model.GroupedEvent, error)
	ProcessBatch(raws []model.RawEvent) ([]model.GroupedEvent, error)
}

// RuleSetter is a Processor whose rules can be replaced while it runs.
type RuleSetter interface {
	SetRules(rs *fingerprinting.Rules)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithDedup collapses events that share a fingerprint hash. In stream mode
// events are buffered for window before each deduplicated flush.
func WithDedup(d *dedup.Deduplicator, window time.Duration) Option {
	return func(p *Pipeline) {
		p.dedup = d
		p.window = window
	}
}

// WithMaxBufferSize forces a stream flush once n distinct fingerprint
// groups are buffered.
// 0 (default) means only the window triggers a flush.
func WithMaxBufferSize(n int) Option {
	return func(p *Pipeline) { p.maxBuffer = n }
}

// Pipeline connects a connector, a processor and an output.
type Pipeline struct {
	connector connector.Connector
	processor Processor
	output    output.Output

	dedup     *dedup.Deduplicator
	window    time.Duration
	maxBuffer int

	skippedLogs atomic.Int64
}

// New creates a Pipeline from the given components.
func New(conn connector.Connector, proc Processor, out output.Output, opts ...Option) *Pipeline {
	p := &Pipeline{
		connector: conn,
		processor: proc,
		output:    out,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Skipped returns the number of events that failed to process.
func (p *Pipeline) Skipped() int64 {
	return p.skippedLogs.Load()
}

// SetRules swaps the processor's rules. It reports false when the
// processor does not support live rules.
func (p *Pipeline) SetRules(rs *fingerprinting.Rules) bool {
	setter, ok := p.processor.(RuleSetter)
	if !ok {
		return false
	}
	setter.SetRules(rs)
	return true
}

// Stream groups events as they arrive. It returns nil when the connector
// closes its channel, or ctx.Err() once the context is cancelled. Events
// that fail to process are logged and skipped.
func (p *Pipeline) Stream(ctx context.Context, cfg connector.ConnectorConfig) error {
	ch, err := p.connector.Stream(ctx, cfg)
	if err != nil {
		return fmt.Errorf("pipeline stream: %w", err)
	}

	if p.dedup != nil {
		return p.streamWithDedup(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			event, ok := p.process(raw)
			if !ok {
				continue
			}
			if err := p.output.Write(ctx, event); err != nil {
				return fmt.Errorf("pipeline output: %w", err)
			}
		}
	}
}

func (p *Pipeline) streamWithDedup(ctx context.Context, ch <-chan model.RawEvent) error {
	buf := newStreamBuffer(p.dedup, p.output, p.window, p.maxBuffer)

	for {
		select {
		case <-ctx.Done():
			// Flush what is buffered before returning.
			if err := buf.flush(context.Background()); err != nil {
				return fmt.Errorf("pipeline output: %w", err)
			}
			return ctx.Err()
		case <-buf.flushCh():
			if err := buf.flush(ctx); err != nil {
				return fmt.Errorf("pipeline output: %w", err)
			}
		case raw, ok := <-ch:
			if !ok {
				if err := buf.flush(ctx); err != nil {
					return fmt.Errorf("pipeline output: %w", err)
				}
				return nil
			}
			event, ok := p.process(raw)
			if !ok {
				continue
			}
			if buf.add(event) {
				if err := buf.flush(ctx); err != nil {
					return fmt.Errorf("pipeline output: %w", err)
				}
			}
		}
	}
}

// Query groups one batch of historical events. If the batch fails as a
// whole, each event is processed on its own and failures are skipped.
func (p *Pipeline) Query(ctx context.Context, cfg connector.ConnectorConfig, params connector.QueryParams) error {
	raws, err := p.connector.Query(ctx, cfg, params)
	if err != nil {
		return fmt.Errorf("pipeline query: %w", err)
	}

	events, err := p.processor.ProcessBatch(raws)
	if err != nil {
		slog.Warn("batch processing failed, retrying per event", "events", len(raws), "error", err)
		events = events[:0]
		for _, raw := range raws {
			if event, ok := p.process(raw); ok {
				events = append(events, event)
			}
		}
	}

	if p.dedup != nil {
		events = p.dedup.DeduplicateBatch(events)
	}

	for _, event := range events {
		if err := p.output.Write(ctx, event); err != nil {
			return fmt.Errorf("pipeline output: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) process(raw model.RawEvent) (model.GroupedEvent, bool) {
	event, err := p.processor.Process(raw)
	if err != nil {
		p.skippedLogs.Add(1)
		slog.Warn("skipping event", "source", raw.Source, "error", err)
		return model.GroupedEvent{}, false
	}
	return event, true
}

// Close shuts down the output.
func (p *Pipeline) Close() error {
	if n := p.skippedLogs.Load(); n > 0 {
		slog.Info("pipeline closed with skipped events", "skipped", n)
	}
	return p.output.Close()
}

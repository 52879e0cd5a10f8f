package grouping

import (
	"context"
	"fmt"

	"github.com/crimson-sun/grouping/internal/engine"
	"github.com/crimson-sun/grouping/internal/engine/rulecache"
	"github.com/crimson-sun/grouping/internal/model"
	"github.com/crimson-sun/grouping/internal/rulesource"
)

// Grouper assigns events to groups.
type Grouper struct {
	engine *engine.Engine
	cache  *rulecache.Cache
}

// New creates a Grouper. Without WithRules or WithRuleFiles every event is
// grouped by its default fingerprint until SetRules is called.
func New(opts ...Option) (*Grouper, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cache, err := rulecache.New(o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating rule cache: %w", err)
	}
	g := &Grouper{
		engine: engine.New(nil, engine.WithoutPayload()),
		cache:  cache,
	}

	switch {
	case len(o.rulePatterns) > 0:
		rs, err := rulesource.New(o.rulePatterns, rulesource.WithCompiler(cache.Get)).Load()
		if err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		g.engine.SetRules(rs)
	case o.rulesText != "":
		rs, err := g.Compile(o.rulesText)
		if err != nil {
			return nil, err
		}
		g.SetRules(rs)
	}
	return g, nil
}

// Group decodes an event JSON payload and groups it.
func (g *Grouper) Group(payload []byte) (Result, error) {
	ev, err := g.engine.Process(model.RawEvent{Payload: payload})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Fingerprint: ev.Fingerprint,
		Hash:        ev.Hash,
		Title:       ev.Title,
		Rule:        ev.Rule,
		Default:     ev.Default,
		Attributes:  ev.Attributes,
	}, nil
}

// GroupBatch groups several payloads. It stops at the first payload that
// is not a valid event.
func (g *Grouper) GroupBatch(payloads [][]byte) ([]Result, error) {
	results := make([]Result, 0, len(payloads))
	for i, p := range payloads {
		res, err := g.Group(p)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// GroupEvent groups an event built in code.
func (g *Grouper) GroupEvent(ev Event) Result {
	gr := g.engine.Group(ev.toModel())
	res := Result{
		Fingerprint: gr.Fingerprint,
		Hash:        gr.Hash,
		Title:       gr.Title,
		Default:     gr.Default(),
	}
	if gr.Rule != nil {
		res.Rule = gr.Rule.String()
		res.Attributes = gr.Attributes
	}
	return res
}

// Compile parses a fingerprinting configuration. Compiled configurations
// are cached by their text, so compiling the same text again is cheap.
// Errors satisfy IsInvalidConfig.
func (g *Grouper) Compile(text string) (*Rules, error) {
	rs, err := g.cache.Get(text)
	if err != nil {
		return nil, err
	}
	return &Rules{rules: rs}, nil
}

// SetRules replaces the active rules. Events being grouped concurrently
// finish with the rules they started with.
func (g *Grouper) SetRules(rs *Rules) {
	if rs == nil {
		g.engine.SetRules(nil)
		return
	}
	g.engine.SetRules(rs.rules)
}

// Rules returns the active rules.
func (g *Grouper) Rules() *Rules {
	return &Rules{rules: g.engine.Rules()}
}

// WatchRules loads the files matching patterns and reloads them whenever
// one changes, until ctx is done. A reload that fails to compile keeps the
// previous rules. The initial load error is returned immediately.
func (g *Grouper) WatchRules(ctx context.Context, patterns ...string) error {
	src := rulesource.New(patterns, rulesource.WithCompiler(g.cache.Get))
	rs, err := src.Load()
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	g.engine.SetRules(rs)
	return src.Watch(ctx, g.engine.SetRules)
}

package engine

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"

	"github.com/crimson-sun/grouping/internal/engine/expander"
	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
	"github.com/crimson-sun/grouping/internal/metrics"
	"github.com/crimson-sun/grouping/internal/model"
)

// Engine orchestrates the decode → match → expand → hash pipeline.
// Rules can be swapped while events are being processed.
type Engine struct {
	rules     atomic.Pointer[fingerprinting.Rules]
	noPayload bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithoutPayload leaves GroupedEvent.Payload empty. Use it when no output
// writes at full verbosity.
func WithoutPayload() Option {
	return func(e *Engine) { e.noPayload = true }
}

// Grouping is the outcome of evaluating one event.
type Grouping struct {
	Fingerprint []string
	Hash        string
	Title       string
	Rule        *fingerprinting.Rule // nil when no rule fired
	RuleIndex   int                  // -1 when no rule fired
	Attributes  map[string]string
}

// Default reports whether the default grouping was used.
func (g Grouping) Default() bool { return g.Rule == nil }

// New creates an Engine evaluating rs. A nil rule set groups every event
// by its default fingerprint.
func New(rs *fingerprinting.Rules, opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	e.SetRules(rs)
	return e
}

// Rules returns the active rule set.
func (e *Engine) Rules() *fingerprinting.Rules {
	return e.rules.Load()
}

// SetRules replaces the active rule set. Events already being processed
// finish with the rules they started with.
func (e *Engine) SetRules(rs *fingerprinting.Rules) {
	if rs == nil {
		rs = &fingerprinting.Rules{Version: fingerprinting.Version}
	}
	e.rules.Store(rs)
	metrics.RulesLoaded.Set(float64(len(rs.Rules)))
}

// Group evaluates a decoded event against the active rules.
func (e *Engine) Group(ev *model.Event) Grouping {
	rs := e.rules.Load()
	x := expander.New(ev)

	g := Grouping{RuleIndex: -1}
	if m, ok := rs.Match(ev); ok {
		g.Rule = m.Rule
		g.RuleIndex = rs.Index(m.Rule)
		g.Attributes = m.Attributes
		g.Fingerprint = x.Fingerprint(m.Fingerprint)
		if title, ok := m.Attributes["title"]; ok {
			g.Title = x.Title(title)
		}
	} else {
		g.Fingerprint = x.DefaultFingerprint()
	}
	if g.Title == "" {
		g.Title = x.DefaultTitle()
	}
	g.Hash = Hash(g.Fingerprint)
	return g
}

// Process decodes and groups a single raw event.
func (e *Engine) Process(raw model.RawEvent) (model.GroupedEvent, error) {
	start := time.Now()
	defer func() { metrics.ProcessDuration.Observe(time.Since(start).Seconds()) }()

	ev, err := model.DecodeEvent(raw.Payload)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(metrics.ResultError).Inc()
		return model.GroupedEvent{}, err
	}

	g := e.Group(ev)
	if g.Default() {
		metrics.EventsTotal.WithLabelValues(metrics.ResultDefault).Inc()
	} else {
		metrics.EventsTotal.WithLabelValues(metrics.ResultMatched).Inc()
		metrics.RuleMatches.WithLabelValues(strconv.Itoa(g.RuleIndex)).Inc()
	}

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = raw.Timestamp
	}
	out := model.GroupedEvent{
		EventID:     ev.EventID,
		Timestamp:   ts,
		Source:      raw.Source,
		Platform:    ev.Platform,
		Hash:        g.Hash,
		Fingerprint: g.Fingerprint,
		Title:       g.Title,
		Default:     g.Default(),
	}
	if !e.noPayload {
		out.Payload = json.RawMessage(raw.Payload)
	}
	if g.Rule != nil {
		out.Rule = g.Rule.String()
		out.Attributes = g.Attributes
	}
	return out, nil
}

// ProcessBatch groups a slice of raw events. It stops at the first event
// that fails to decode.
func (e *Engine) ProcessBatch(raws []model.RawEvent) ([]model.GroupedEvent, error) {
	events := make([]model.GroupedEvent, 0, len(raws))
	for _, raw := range raws {
		ev, err := e.Process(raw)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Hash is the stable identity of an expanded fingerprint: xxhash64 of the
// components joined by NUL, as 16 hex digits.
func Hash(fingerprint []string) string {
	sum := xxhash.Sum64String(strings.Join(fingerprint, "\x00"))
	s := strconv.FormatUint(sum, 16)
	if len(s) < 16 {
		s = strings.Repeat("0", 16-len(s)) + s
	}
	return s
}

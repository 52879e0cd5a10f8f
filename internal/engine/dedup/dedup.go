package dedup

import (
	"fmt"
	"time"

	"github.com/crimson-sun/grouping/internal/model"
)

// Config controls deduplication behavior.
type Config struct {
	Window time.Duration // grouping window (default 5s)
}

// Deduplicator collapses events that share a fingerprint hash within a time window.
type Deduplicator struct {
	cfg Config
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// group accumulates events with the same hash.
type group struct {
	event    model.GroupedEvent
	count    int
	firstTS  time.Time
	latestTS time.Time
}

// DeduplicateBatch collapses events with identical Hash within Window of the
// first event of their group. Returns events in first-occurrence order.
// Sets Count on merged events and appends the count to Title.
func (d *Deduplicator) DeduplicateBatch(events []model.GroupedEvent) []model.GroupedEvent {
	if len(events) == 0 {
		return nil
	}

	var order []*group
	groups := make(map[string]*group)

	for _, e := range events {
		g, exists := groups[e.Hash]
		if exists && e.Timestamp.Sub(g.firstTS) <= d.cfg.Window {
			g.count++
			if e.Timestamp.After(g.latestTS) {
				g.latestTS = e.Timestamp
			}
			continue
		}

		// New hash, or the previous group's window has passed.
		g = &group{
			event:    e,
			count:    1,
			firstTS:  e.Timestamp,
			latestTS: e.Timestamp,
		}
		groups[e.Hash] = g
		order = append(order, g)
	}

	result := make([]model.GroupedEvent, 0, len(order))
	for _, g := range order {
		e := g.event
		if g.count > 1 {
			e.Count = g.count
			e.Title = fmt.Sprintf("%s (x%d in %s)", e.Title, e.Count, formatDuration(g.latestTS.Sub(g.firstTS)))
		}
		result = append(result, e)
	}
	return result
}

// formatDuration produces a human-readable short duration string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}

package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/crimson-sun/grouping/internal/engine/dedup"
	"github.com/crimson-sun/grouping/internal/model"
	"github.com/crimson-sun/grouping/internal/output"
)

// eventsPerGroup caps raw events held per allowed group, so a single hot
// fingerprint cannot grow the buffer without bound.
const eventsPerGroup = 256

// streamBuffer accumulates grouped events and flushes deduplicated batches on
// a timer. maxSize bounds the number of distinct fingerprint hashes pending,
// which is the number of events a flush writes.
type streamBuffer struct {
	dedup   *dedup.Deduplicator
	out     output.Output
	window  time.Duration
	maxSize int // 0 means unlimited

	mu      sync.Mutex
	pending []model.GroupedEvent
	hashes  map[string]int // pending events per fingerprint hash
	timer   *time.Timer
}

func newStreamBuffer(d *dedup.Deduplicator, out output.Output, window time.Duration, maxSize int) *streamBuffer {
	return &streamBuffer{
		dedup:   d,
		out:     out,
		window:  window,
		maxSize: maxSize,
		hashes:  make(map[string]int),
	}
}

// add appends an event and starts the flush timer on the first one.
// It reports whether the buffer holds maxSize distinct groups, or
// maxSize*eventsPerGroup events in total.
func (b *streamBuffer) add(event model.GroupedEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, event)
	b.hashes[event.Hash]++
	if len(b.pending) == 1 {
		b.timer = time.NewTimer(b.window)
	}
	if b.maxSize <= 0 {
		return false
	}
	return len(b.hashes) >= b.maxSize || len(b.pending) >= b.maxSize*eventsPerGroup
}

// flushCh returns the timer's channel, or nil if no timer is active.
func (b *streamBuffer) flushCh() <-chan time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

// flush deduplicates and writes all pending events.
func (b *streamBuffer) flush(ctx context.Context) error {
	b.mu.Lock()
	events := b.pending
	b.pending = nil
	clear(b.hashes)
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(events) == 0 {
		return nil
	}

	for _, e := range b.dedup.DeduplicateBatch(events) {
		if err := b.out.Write(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

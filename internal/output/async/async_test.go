package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crimson-sun/grouping/internal/metrics"
	"github.com/crimson-sun/grouping/internal/model"
)

type mockOutput struct {
	mu     sync.Mutex
	events []model.GroupedEvent
	closed bool
	err    error         // if set, Write returns this
	delay  time.Duration // if >0, Write sleeps first
}

func (m *mockOutput) Write(_ context.Context, event model.GroupedEvent) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return m.err
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockOutput) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func testEvent(fp string) model.GroupedEvent {
	return model.GroupedEvent{
		Hash:        "00000000000000cc",
		Fingerprint: []string{fp},
		Title:       fp,
	}
}

func TestEventsFlowThrough(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	for i := 0; i < 10; i++ {
		if err := a.Write(context.Background(), testEvent("flow")); err != nil {
			t.Fatalf("Write error: %v", err)
		}
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if inner.eventCount() != 10 {
		t.Errorf("got %d events, want 10", inner.eventCount())
	}
	if !inner.closed {
		t.Error("inner output not closed")
	}
}

func TestOrderPreserved(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(4))

	want := []string{"a", "b", "c", "d", "e", "f"}
	for _, fp := range want {
		a.Write(context.Background(), testEvent(fp))
	}
	a.Close()

	for i, ev := range inner.events {
		if ev.Fingerprint[0] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, ev.Fingerprint[0], want[i])
		}
	}
}

func TestBackpressureBlocks(t *testing.T) {
	inner := &mockOutput{delay: 50 * time.Millisecond}
	a := New(inner, WithBufferSize(1))

	a.Write(context.Background(), testEvent("first"))

	done := make(chan struct{})
	go func() {
		a.Write(context.Background(), testEvent("second"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked indefinitely (expected eventual unblock via drain)")
	}

	a.Close()
}

func TestWriteHonorsContext(t *testing.T) {
	inner := &mockOutput{delay: 200 * time.Millisecond}
	a := New(inner, WithBufferSize(1))
	defer a.Close()

	// One event in flight, one buffered, so the third must wait.
	a.Write(context.Background(), testEvent("one"))
	a.Write(context.Background(), testEvent("two"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := a.Write(ctx, testEvent("three")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDropOnFull(t *testing.T) {
	inner := &mockOutput{delay: 100 * time.Millisecond}
	a := New(inner, WithBufferSize(1), WithDropOnFull())

	before := testutil.ToFloat64(metrics.DroppedEvents)
	for i := 0; i < 20; i++ {
		a.Write(context.Background(), testEvent("burst"))
	}

	a.Close()

	delivered := inner.eventCount()
	if delivered == 20 {
		t.Error("expected some events to be dropped in drop-on-full mode")
	}
	if delivered == 0 {
		t.Error("expected at least some events to be delivered")
	}
	if dropped := testutil.ToFloat64(metrics.DroppedEvents) - before; int(dropped) != 20-delivered {
		t.Errorf("dropped counter = %v, want %d", dropped, 20-delivered)
	}
}

func TestCloseDrainsRemaining(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(100))

	for i := 0; i < 50; i++ {
		a.Write(context.Background(), testEvent("drain"))
	}

	a.Close()

	if inner.eventCount() != 50 {
		t.Errorf("after Close, got %d events, want 50 (drain incomplete)", inner.eventCount())
	}
}

func TestErrorCallbackInvoked(t *testing.T) {
	inner := &mockOutput{err: errors.New("write failed")}
	var errorCount atomic.Int64
	a := New(inner, WithBufferSize(16), WithOnError(func(err error) {
		errorCount.Add(1)
	}))

	for i := 0; i < 5; i++ {
		a.Write(context.Background(), testEvent("failing"))
	}

	a.Close()

	if errorCount.Load() != 5 {
		t.Errorf("error callback called %d times, want 5", errorCount.Load())
	}
}

func TestNoGoroutineLeakAfterClose(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testEvent("leak-check"))
	a.Close()

	select {
	case <-a.done:
	case <-time.After(time.Second):
		t.Fatal("drain goroutine did not exit after Close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	inner := &mockOutput{}
	a := New(inner, WithBufferSize(16))

	a.Write(context.Background(), testEvent("idempotent"))

	if err := a.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

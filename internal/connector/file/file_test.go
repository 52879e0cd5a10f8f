package file

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/grouping/internal/connector"
	"github.com/crimson-sun/grouping/internal/model"
)

const sample = `{"event_id": "1", "timestamp": "2026-02-23T09:00:00Z", "message": "early"}

{"event_id": "2", "timestamp": "2026-02-23T10:30:00Z", "message": "in range"}
not json
{"event_id": "3", "timestamp": "2026-02-23T12:00:00Z", "message": "late"}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.ndjson")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func collect(t *testing.T, ch <-chan model.RawEvent, want int) []model.RawEvent {
	t.Helper()
	var got []model.RawEvent
	timeout := time.After(2 * time.Second)
	for len(got) < want {
		select {
		case raw, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d events, want %d", len(got), want)
			}
			got = append(got, raw)
		case <-timeout:
			t.Fatalf("timed out after %d events, want %d", len(got), want)
		}
	}
	return got
}

func TestStream_ReadsToEOF(t *testing.T) {
	path := writeSample(t)
	c := &Connector{}
	ch, err := c.Stream(context.Background(), connector.ConnectorConfig{Endpoint: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := collect(t, ch, 4)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to close at EOF")
	}

	if events[0].Source != "file" {
		t.Fatalf("expected source 'file', got %q", events[0].Source)
	}
	if events[0].Metadata["path"] != path || events[0].Metadata["line"] != 1 {
		t.Fatalf("unexpected metadata: %v", events[0].Metadata)
	}
	// The blank line is skipped but still counted.
	if events[1].Metadata["line"] != 3 {
		t.Fatalf("expected line 3, got %v", events[1].Metadata["line"])
	}
	if string(events[2].Payload) != "not json" {
		t.Fatalf("unexpected payload: %q", events[2].Payload)
	}
	// Last line has no trailing newline.
	if !strings.Contains(string(events[3].Payload), `"late"`) {
		t.Fatalf("unexpected last payload: %q", events[3].Payload)
	}
}

func TestStream_Stdin(t *testing.T) {
	c := &Connector{stdin: strings.NewReader("{\"event_id\": \"a\"}\n{\"event_id\": \"b\"}\n")}
	ch, err := c.Stream(context.Background(), connector.ConnectorConfig{Endpoint: Stdin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collect(t, ch, 2)
	if events[1].Metadata["path"] != Stdin {
		t.Fatalf("unexpected path: %v", events[1].Metadata["path"])
	}
}

func TestStream_Follow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.ndjson")
	if err := os.WriteFile(path, []byte("{\"event_id\": \"1\"}\n{\"event_id\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &Connector{}
	ch, err := c.Stream(ctx, connector.ConnectorConfig{Endpoint: path, Extra: map[string]string{"follow": "true"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := collect(t, ch, 1)
	if string(first[0].Payload) != `{"event_id": "1"}` {
		t.Fatalf("unexpected payload: %q", first[0].Payload)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(": \"2\"}\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	second := collect(t, ch, 1)
	if string(second[0].Payload) != `{"event_id": "2"}` {
		t.Fatalf("partial line not joined: %q", second[0].Payload)
	}

	cancel()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("timed out waiting for channel to close")
		}
	}
}

func TestStream_MissingFile(t *testing.T) {
	c := &Connector{}
	if _, err := c.Stream(context.Background(), connector.ConnectorConfig{Endpoint: filepath.Join(t.TempDir(), "nope")}); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := c.Stream(context.Background(), connector.ConnectorConfig{}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestQuery_TimeFilter(t *testing.T) {
	path := writeSample(t)
	start, _ := time.Parse(time.RFC3339, "2026-02-23T10:00:00Z")
	end, _ := time.Parse(time.RFC3339, "2026-02-23T11:00:00Z")

	c := &Connector{}
	events, err := c.Query(context.Background(), connector.ConnectorConfig{Endpoint: path}, connector.QueryParams{Start: start, End: end})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "in range" plus the undecodable line.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if !strings.Contains(string(events[0].Payload), "in range") {
		t.Fatalf("unexpected first event: %q", events[0].Payload)
	}
}

func TestQuery_Limit(t *testing.T) {
	path := writeSample(t)
	c := &Connector{}
	events, err := c.Query(context.Background(), connector.ConnectorConfig{Endpoint: path}, connector.QueryParams{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

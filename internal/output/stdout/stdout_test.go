package stdout

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/crimson-sun/grouping/internal/model"
	"github.com/crimson-sun/grouping/internal/output"
)

func testEvent() model.GroupedEvent {
	return model.GroupedEvent{
		EventID:     "e1",
		Timestamp:   time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC),
		Hash:        "0123456789abcdef",
		Fingerprint: []string{"timeouts", "checkout"},
		Title:       "Timeout in checkout",
		Rule:        `error.type:"*Timeout*" -> "timeouts", {{ transaction }}`,
		Attributes:  map[string]string{"title": "Timeout in {{ transaction }}"},
		Payload:     json.RawMessage(`{"event_id":"e1"}`),
	}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestOutputCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Standard, false)
		out.Write(context.Background(), testEvent())
	})

	// Should be single line (NDJSON).
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if m["hash"] != "0123456789abcdef" {
		t.Fatalf("expected hash, got %v", m["hash"])
	}
	if _, ok := m["payload"]; ok {
		t.Fatal("payload should be omitted at Standard")
	}
}

func TestOutputPrettyJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Standard, true)
		out.Write(context.Background(), testEvent())
	})

	// Pretty JSON should have multiple lines with indentation.
	if !strings.Contains(result, "  ") {
		t.Fatal("expected indented output for pretty mode")
	}
	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected multi-line pretty output, got %d lines", len(lines))
	}
}

func TestOutputMinimalOmitsFields(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Minimal, false)
	if err := out.Write(context.Background(), testEvent()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := m["attributes"]; ok {
		t.Fatal("attributes should be omitted at Minimal")
	}
	if m["title"] != "Timeout in checkout" {
		t.Fatalf("title should be preserved, got %v", m["title"])
	}
}

func TestOutputFullKeepsPayload(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Full, false)
	if err := out.Write(context.Background(), testEvent()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !strings.Contains(buf.String(), `"payload":{"event_id":"e1"}`) {
		t.Fatalf("expected payload in output, got %s", buf.String())
	}
}

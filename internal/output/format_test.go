package output

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/crimson-sun/grouping/internal/model"
)

func baseEvent() model.GroupedEvent {
	return model.GroupedEvent{
		EventID:     "e1",
		Timestamp:   time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC),
		Source:      "file",
		Platform:    "python",
		Hash:        "0123456789abcdef",
		Fingerprint: []string{"div-by-zero"},
		Title:       "ZeroDivisionError: division by zero",
		Rule:        `type:"ZeroDivisionError" -> "div-by-zero"`,
		Attributes:  map[string]string{"title": "Division"},
		Payload:     json.RawMessage(`{"event_id":"e1"}`),
	}
}

func TestFormatEventMinimal(t *testing.T) {
	e := FormatEvent(baseEvent(), Minimal)

	if e.Payload != nil {
		t.Fatal("Payload should be empty at Minimal")
	}
	if e.Attributes != nil {
		t.Fatal("Attributes should be empty at Minimal")
	}
	if e.Hash != "0123456789abcdef" {
		t.Fatal("Hash should be preserved")
	}
	if e.Title != "ZeroDivisionError: division by zero" {
		t.Fatal("Title should be preserved")
	}
}

func TestFormatEventStandard(t *testing.T) {
	e := FormatEvent(baseEvent(), Standard)

	if e.Payload != nil {
		t.Fatal("Payload should be empty at Standard")
	}
	if e.Attributes["title"] != "Division" {
		t.Fatal("Attributes should be preserved at Standard")
	}
}

func TestFormatEventFull(t *testing.T) {
	e := FormatEvent(baseEvent(), Full)

	if string(e.Payload) != `{"event_id":"e1"}` {
		t.Fatal("Payload should be preserved at Full")
	}
	if e.Attributes["title"] != "Division" {
		t.Fatal("Attributes should be preserved at Full")
	}
}

func TestFormatEventCount(t *testing.T) {
	e := baseEvent()
	e.Count = 5
	formatted := FormatEvent(e, Standard)

	data, err := json.Marshal(formatted)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if m["count"] != float64(5) {
		t.Fatalf("expected count=5, got %v", m["count"])
	}

	// Count == 0 should be omitted.
	e.Count = 0
	formatted = FormatEvent(e, Standard)
	data, _ = json.Marshal(formatted)
	m = nil
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := m["count"]; ok {
		t.Fatal("count=0 should be omitted from JSON")
	}
}

func TestJSONTagNames(t *testing.T) {
	e := baseEvent()
	e.Count = 3
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	expected := []string{"event_id", "timestamp", "source", "platform", "hash", "fingerprint", "title", "rule", "attributes", "count", "payload"}
	for _, key := range expected {
		if _, ok := m[key]; !ok {
			t.Fatalf("expected key %q in JSON", key)
		}
	}
	if _, ok := m["default"]; ok {
		t.Fatal("default=false should be omitted from JSON")
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := []struct {
		in      string
		want    Verbosity
		wantErr bool
	}{
		{"minimal", Minimal, false},
		{"Standard", Standard, false},
		{" full ", Full, false},
		{"", Standard, false},
		{"loud", Standard, true},
	}
	for _, tt := range tests {
		got, err := ParseVerbosity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseVerbosity(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Full.String() != "full" {
		t.Errorf("Full.String() = %q", Full.String())
	}
}

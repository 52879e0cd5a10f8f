package model

import (
	"time"

	json "github.com/goccy/go-json"
)

// GroupedEvent is the engine's output type: an event with its resolved grouping.
type GroupedEvent struct {
	EventID     string            `json:"event_id,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Source      string            `json:"source,omitempty"`
	Platform    string            `json:"platform,omitempty"`
	Hash        string            `json:"hash"`                 // hex xxhash64 of Fingerprint
	Fingerprint []string          `json:"fingerprint"`          // expanded fingerprint components
	Title       string            `json:"title"`                // rule title or derived title, <=120 runes
	Rule        string            `json:"rule,omitempty"`       // textual form of the matching rule
	Default     bool              `json:"default,omitempty"`    // no rule matched
	Attributes  map[string]string `json:"attributes,omitempty"` // rule attributes as written
	Count       int               `json:"count,omitempty"`      // >0 when deduplicated
	Payload     json.RawMessage   `json:"payload,omitempty"`    // original event (full verbosity)
}

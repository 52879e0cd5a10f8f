package model

import "time"

// RawEvent is the intermediate type produced by connectors and consumed by the engine.
type RawEvent struct {
	Timestamp time.Time
	Source    string         // provider name (e.g. "file", "sentry")
	Payload   []byte         // one event JSON document
	Metadata  map[string]any // provider-specific metadata
}

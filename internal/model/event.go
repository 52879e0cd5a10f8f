package model

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Event is the part of an error event payload that grouping reads.
// Decode it from event JSON with DecodeEvent or json.Unmarshal.
type Event struct {
	EventID     string
	Timestamp   time.Time
	Platform    string
	Logger      string
	Level       string
	Transaction string
	LogEntry    *LogEntry
	Exceptions  []*Exception // chain order, entries may be nil
	Stacktrace  *Stacktrace
	Threads     []*Thread // nil when the event has no thread list
	Tags        []Tag
}

// LogEntry is the log message interface of an event.
type LogEntry struct {
	Formatted string `json:"formatted,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Exception is one value of an exception chain.
type Exception struct {
	Type       string      `json:"type,omitempty"`
	Value      string      `json:"value,omitempty"`
	Module     string      `json:"module,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Stacktrace holds frames ordered oldest call first.
type Stacktrace struct {
	Frames []*Frame `json:"frames"`
}

// Frame is a single stack frame.
type Frame struct {
	Function    string `json:"function,omitempty"`
	RawFunction string `json:"raw_function,omitempty"`
	Module      string `json:"module,omitempty"`
	Filename    string `json:"filename,omitempty"`
	AbsPath     string `json:"abs_path,omitempty"`
	Package     string `json:"package,omitempty"`
	Platform    string `json:"platform,omitempty"`
	InApp       *bool  `json:"in_app,omitempty"`
	Lineno      int    `json:"lineno,omitempty"`
}

// Thread is one entry of the threads interface.
type Thread struct {
	Name       string      `json:"name,omitempty"`
	Crashed    bool        `json:"crashed,omitempty"`
	Current    bool        `json:"current,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

// Tag is a single key/value tag pair.
type Tag struct {
	Key   string
	Value string
}

// Message returns the formatted log message, or "" when there is none.
func (e *Event) Message() string {
	if e.LogEntry == nil {
		return ""
	}
	return e.LogEntry.Formatted
}

// Tag returns the value of the tag with the given key.
func (e *Event) Tag(key string) (string, bool) {
	for _, t := range e.Tags {
		if t.Key == key {
			return t.Value, true
		}
	}
	return "", false
}

// CrashingThread picks the thread whose stack is treated as the crash site:
// the only thread, else the single crashed thread, else the single current one.
func (e *Event) CrashingThread() *Thread {
	switch len(e.Threads) {
	case 0:
		return nil
	case 1:
		return e.Threads[0]
	}
	if t := singleThread(e.Threads, func(t *Thread) bool { return t.Crashed }); t != nil {
		return t
	}
	return singleThread(e.Threads, func(t *Thread) bool { return t.Current })
}

func singleThread(threads []*Thread, keep func(*Thread) bool) *Thread {
	var found *Thread
	n := 0
	for _, t := range threads {
		if t != nil && keep(t) {
			found = t
			n++
		}
	}
	if n != 1 {
		return nil
	}
	return found
}

// DecodeEvent parses one event JSON document.
func DecodeEvent(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

type eventJSON struct {
	EventID     string          `json:"event_id"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Platform    string          `json:"platform"`
	Logger      string          `json:"logger"`
	Level       string          `json:"level"`
	Transaction string          `json:"transaction"`
	Message     json.RawMessage `json:"message"`
	LogEntry    *LogEntry       `json:"logentry"`
	Exception   json.RawMessage `json:"exception"`
	Stacktrace  *Stacktrace     `json:"stacktrace"`
	Threads     json.RawMessage `json:"threads"`
	Tags        json.RawMessage `json:"tags"`
}

// UnmarshalJSON accepts both the `{"values": [...]}` and bare-list forms of
// the exception and threads interfaces, and tags as pairs or as an object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w eventJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return err
	}
	exceptions, err := decodeValues[*Exception](w.Exception)
	if err != nil {
		return fmt.Errorf("exception: %w", err)
	}
	threads, err := decodeValues[*Thread](w.Threads)
	if err != nil {
		return fmt.Errorf("threads: %w", err)
	}
	tags, err := decodeTags(w.Tags)
	if err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	logEntry, err := normalizeLogEntry(w.LogEntry, w.Message)
	if err != nil {
		return fmt.Errorf("message: %w", err)
	}

	*e = Event{
		EventID:     w.EventID,
		Timestamp:   ts,
		Platform:    w.Platform,
		Logger:      w.Logger,
		Level:       w.Level,
		Transaction: w.Transaction,
		LogEntry:    logEntry,
		Exceptions:  exceptions,
		Stacktrace:  w.Stacktrace,
		Threads:     threads,
		Tags:        tags,
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func decodeValues[T any](raw json.RawMessage) ([]T, error) {
	if isNull(raw) {
		return nil, nil
	}
	var list []T
	if bytes.TrimSpace(raw)[0] == '[' {
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped struct {
		Values []T `json:"values"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Values, nil
}

func decodeTags(raw json.RawMessage) ([]Tag, error) {
	if isNull(raw) {
		return nil, nil
	}
	if bytes.TrimSpace(raw)[0] == '{' {
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		tags := make([]Tag, 0, len(m))
		for k, v := range m {
			tags = append(tags, Tag{Key: k, Value: v})
		}
		sort.Slice(tags, func(i, j int) bool { return tags[i].Key < tags[j].Key })
		return tags, nil
	}

	var pairs [][]*string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 || p[0] == nil || p[1] == nil {
			continue
		}
		tags = append(tags, Tag{Key: *p[0], Value: *p[1]})
	}
	return tags, nil
}

// normalizeLogEntry fills Formatted from the raw message when only the
// template or the legacy top-level message string was sent.
func normalizeLogEntry(le *LogEntry, legacy json.RawMessage) (*LogEntry, error) {
	if le == nil && !isNull(legacy) {
		le = &LogEntry{}
		if bytes.TrimSpace(legacy)[0] == '"' {
			if err := json.Unmarshal(legacy, &le.Formatted); err != nil {
				return nil, err
			}
		} else if err := json.Unmarshal(legacy, le); err != nil {
			return nil, err
		}
	}
	if le == nil {
		return nil, nil
	}
	if le.Formatted == "" {
		le.Formatted = le.Message
	}
	return le, nil
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if isNull(raw) {
		return time.Time{}, nil
	}
	var s string
	if bytes.TrimSpace(raw)[0] != '"' {
		secs, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("timestamp: %w", err)
		}
		whole := int64(secs)
		return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	return ts, nil
}

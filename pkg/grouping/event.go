package grouping

import (
	"sort"
	"time"

	"github.com/crimson-sun/grouping/internal/model"
)

// Event is an error event built in code. Use it with GroupEvent when the
// event is not already JSON. For payloads, use Group.
type Event struct {
	EventID     string
	Timestamp   time.Time
	Platform    string // e.g. "python", "javascript", "cocoa"
	Message     string
	Logger      string
	Level       string
	Transaction string
	Tags        map[string]string
	Exceptions  []Exception // chain order, the last one is the one raised
	Frames      []Frame     // stacktrace of events without an exception
}

// Exception is one value of an exception chain.
type Exception struct {
	Type   string
	Value  string
	Module string
	Frames []Frame // oldest call first
}

// Frame is a single stack frame.
type Frame struct {
	Function string
	Module   string
	Filename string
	AbsPath  string
	Package  string
	Platform string
	InApp    *bool // nil when unknown
}

// Result is the group an event belongs to.
type Result struct {
	Fingerprint []string          `json:"fingerprint"`          // expanded fingerprint components
	Hash        string            `json:"hash"`                 // stable group identity
	Title       string            `json:"title"`                // <=120 runes
	Rule        string            `json:"rule,omitempty"`       // the matching rule, empty for default grouping
	Default     bool              `json:"default,omitempty"`    // no rule matched
	Attributes  map[string]string `json:"attributes,omitempty"` // rule attributes as written
}

func (e Event) toModel() *model.Event {
	ev := &model.Event{
		EventID:     e.EventID,
		Timestamp:   e.Timestamp,
		Platform:    e.Platform,
		Logger:      e.Logger,
		Level:       e.Level,
		Transaction: e.Transaction,
	}
	if e.Message != "" {
		ev.LogEntry = &model.LogEntry{Formatted: e.Message}
	}
	for _, exc := range e.Exceptions {
		ev.Exceptions = append(ev.Exceptions, &model.Exception{
			Type:       exc.Type,
			Value:      exc.Value,
			Module:     exc.Module,
			Stacktrace: stacktrace(exc.Frames),
		})
	}
	ev.Stacktrace = stacktrace(e.Frames)

	keys := make([]string, 0, len(e.Tags))
	for k := range e.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Tags = append(ev.Tags, model.Tag{Key: k, Value: e.Tags[k]})
	}
	return ev
}

func stacktrace(frames []Frame) *model.Stacktrace {
	if len(frames) == 0 {
		return nil
	}
	st := &model.Stacktrace{Frames: make([]*model.Frame, len(frames))}
	for i, f := range frames {
		st.Frames[i] = &model.Frame{
			Function: f.Function,
			Module:   f.Module,
			Filename: f.Filename,
			AbsPath:  f.AbsPath,
			Package:  f.Package,
			Platform: f.Platform,
			InApp:    f.InApp,
		}
	}
	return st
}

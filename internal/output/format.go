package output

import "github.com/crimson-sun/grouping/internal/model"

// FormatEvent returns a copy of the event with fields stripped according to verbosity.
// At Minimal: Payload and Attributes are dropped.
// At Standard: Payload is dropped.
// At Full: all fields preserved.
func FormatEvent(e model.GroupedEvent, verbosity Verbosity) model.GroupedEvent {
	switch verbosity {
	case Minimal:
		e.Payload = nil
		e.Attributes = nil
	case Standard:
		e.Payload = nil
	}
	return e
}

package output

import (
	"context"
	"fmt"
	"strings"

	"github.com/crimson-sun/grouping/internal/model"
)

// Output defines the interface for grouped event destinations.
type Output interface {
	Write(ctx context.Context, event model.GroupedEvent) error
	Close() error
}

// Verbosity controls how much of a grouped event is written.
type Verbosity int

const (
	Minimal  Verbosity = iota // grouping only
	Standard                  // grouping plus rule attributes
	Full                      // everything, including the original payload
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Standard:
		return "standard"
	case Full:
		return "full"
	}
	return fmt.Sprintf("Verbosity(%d)", int(v))
}

// ParseVerbosity maps "minimal", "standard" or "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "standard", "":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("invalid verbosity %q (want minimal, standard or full)", s)
}

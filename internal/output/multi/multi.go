package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/grouping/internal/model"
	"github.com/crimson-sun/grouping/internal/output"
)

// Multi fans out grouped events to multiple outputs. A failing output does
// not stop delivery to the ones after it.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi over the given outputs. Nil outputs are skipped and
// nested Multis are flattened.
func New(outputs ...output.Output) *Multi {
	m := &Multi{}
	for _, o := range outputs {
		switch v := o.(type) {
		case nil:
		case *Multi:
			m.outputs = append(m.outputs, v.outputs...)
		default:
			m.outputs = append(m.outputs, o)
		}
	}
	return m
}

// Len returns the number of wrapped outputs.
func (m *Multi) Len() int { return len(m.outputs) }

// Write delivers the event to every wrapped output and joins their errors.
func (m *Multi) Write(ctx context.Context, event model.GroupedEvent) error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Write(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close calls Close on every wrapped output, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

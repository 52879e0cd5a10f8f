package grouping

import (
	"github.com/crimson-sun/grouping/internal/engine/fingerprinting"
)

// Rules is a compiled, immutable fingerprinting configuration.
type Rules struct {
	rules *fingerprinting.Rules
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	if r == nil || r.rules == nil {
		return 0
	}
	return len(r.rules.Rules)
}

// Changelog returns the text of the leading "##" comment lines.
func (r *Rules) Changelog() string {
	if r == nil || r.rules == nil {
		return ""
	}
	return r.rules.Changelog
}

// String renders the rules in configuration syntax, one per line.
func (r *Rules) String() string {
	if r == nil || r.rules == nil {
		return ""
	}
	return r.rules.String()
}

// MarshalJSON encodes the rules in the versioned JSON structure.
func (r *Rules) MarshalJSON() ([]byte, error) {
	if r == nil || r.rules == nil {
		return []byte("null"), nil
	}
	return r.rules.MarshalJSON()
}

// RulesFromJSON decodes rules encoded by Rules.MarshalJSON.
func RulesFromJSON(data []byte) (*Rules, error) {
	rs, err := fingerprinting.FromJSON(data)
	if err != nil {
		return nil, err
	}
	return &Rules{rules: rs}, nil
}

// IsInvalidConfig reports whether err comes from a configuration that
// cannot be loaded: a syntax error, an unknown matcher or attribute, or a
// malformed JSON rule set.
func IsInvalidConfig(err error) bool {
	return fingerprinting.IsInvalidConfig(err)
}

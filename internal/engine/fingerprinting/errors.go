package fingerprinting

import (
	"errors"
	"fmt"
)

// InvalidConfigError reports a fingerprinting configuration that cannot be
// loaded: a syntax error, an unknown matcher or attribute, or a malformed
// serialized rule set. Loading never yields a partial rule set.
type InvalidConfigError struct {
	Msg    string
	Line   int // 1-based, syntax errors only
	Column int // 1-based, syntax errors only
	Err    error
}

func (e *InvalidConfigError) Error() string { return e.Msg }

func (e *InvalidConfigError) Unwrap() error { return e.Err }

func invalidConfig(format string, args ...any) *InvalidConfigError {
	return &InvalidConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IsInvalidConfig reports whether err is or wraps an *InvalidConfigError.
func IsInvalidConfig(err error) bool {
	var ice *InvalidConfigError
	return errors.As(err, &ice)
}

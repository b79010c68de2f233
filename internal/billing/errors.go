package billing

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned (wrapped in an *ArgumentError) whenever the
// calculator receives input it cannot bill.
var ErrInvalidArgument = errors.New("invalid argument")

// ArgumentError names the offending input. It unwraps to ErrInvalidArgument.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return ErrInvalidArgument }

func invalidArgument(field, format string, args ...any) error {
	return &ArgumentError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is matched by every ParseError
	ErrMalformed = errors.New("malformed input")
	// ErrResourceExhausted is returned when a dataset is too large to hold in memory
	ErrResourceExhausted = errors.New("dataset exceeds resource limits")
)

// ParseError reports malformed input at a specific line
type ParseError struct {
	Line  int    // 1-based line number, 0 when the input ended early
	Msg   string // what was wrong
	Cause error  // underlying parse error, if any
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("parse: %s", e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("parse: line %d: %s: %v", e.Line, e.Msg, e.Cause)
	}
	return fmt.Sprintf("parse: line %d: %s", e.Line, e.Msg)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match ErrMalformed
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

func parseErrorf(line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

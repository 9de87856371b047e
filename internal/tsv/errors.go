package tsv

import (
	"errors"
	"fmt"
)

var (
	errColumnCount  = errors.New("wrong number of columns")
	errEmptyRowKey  = errors.New("empty row key")
	errBadTimestamp = errors.New("invalid timestamp")
)

// BadLineError wraps a sentinel error with context about the line that
// produced it. Callers decide whether a bad line is skippable or fatal.
type BadLineError struct {
	err     error  // The underlying sentinel error
	context string // Additional error context
}

// Error satisfies the error interface
func (e *BadLineError) Error() string {
	if e.context == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.err.Error(), e.context)
}

// Unwrap implements the errors.Unwrap interface for compatibility with errors.Is/As
func (e *BadLineError) Unwrap() error {
	return e.err
}

// newBadLine creates a new bad-line error with context
func newBadLine(err error, format string, args ...interface{}) *BadLineError {
	return &BadLineError{
		err:     err,
		context: fmt.Sprintf(format, args...),
	}
}

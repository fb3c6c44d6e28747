package plugin

import (
	"errors"
	"fmt"
)

// Errors returned by plugin operations.
var (
	// ErrUnknownFormat indicates no format plugin is registered under
	// the requested name.
	ErrUnknownFormat = errors.New("unknown format")

	// ErrFormatRegistered indicates an attempt to register a duplicate
	// format name.
	ErrFormatRegistered = errors.New("format already registered")
)

// ParseError reports a failure while parsing a raw payload.
type ParseError struct {
	// Format is the format plugin name.
	Format string
	// Line is the line number where the error occurred (if available).
	Line int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s parse error at line %d: %s", e.Format, e.Line, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

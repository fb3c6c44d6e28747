package cv

import (
	"errors"
	"fmt"
)

// Errors returned by contextual value operations.
var (
	// ErrMissingDefault indicates a template resolved to a name absent
	// from the keyset and carries no "default" metadata to materialize.
	ErrMissingDefault = errors.New("no key and no default for contextual value")

	// ErrConversion indicates a cached payload could not be parsed as
	// the declared type.
	ErrConversion = errors.New("conversion failed")
)

// ConversionError reports a payload that failed strict parsing.
type ConversionError struct {
	// Name is the resolved key name the payload came from.
	Name string
	// Raw is the unparsable payload.
	Raw string
	// Err is the underlying parse error.
	Err error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert value %q of %s: %v", e.Raw, e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Is implements error matching for ConversionError.
func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

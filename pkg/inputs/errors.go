package inputs

import (
	"errors"
	"fmt"

	"github.com/topoviz/topoviz/pkg/spec"
)

var (
	// ErrMissingInput is returned for a required input with neither a value
	// nor a default.
	ErrMissingInput = errors.New("missing required input")

	// ErrConversion is returned when a raw value does not parse as the
	// declared type.
	ErrConversion = errors.New("input conversion failed")

	// ErrUnresolvedRef is returned when a parameter references an input that
	// has no resolved value.
	ErrUnresolvedRef = errors.New("unresolved input reference")

	// ErrCancelled is returned by input collectors when the user declines
	// to answer.
	ErrCancelled = errors.New("input collection cancelled")
)

// MissingInputError names the input that could not be resolved.
type MissingInputError struct {
	Input string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingInput, e.Input)
}

// Is matches ErrMissingInput.
func (e *MissingInputError) Is(target error) bool { return target == ErrMissingInput }

// ConversionError carries the input name and the offending raw text.
type ConversionError struct {
	Input string
	Type  spec.InputType
	Raw   string
	Err   error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input %s: cannot parse %q as %s: %v", e.Input, e.Raw, e.Type, e.Err)
	}
	return fmt.Sprintf("input %s: cannot parse %q as %s", e.Input, e.Raw, e.Type)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Is matches ErrConversion.
func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass identifies which stage of a run an error came from.
type ErrorClass string

const (
	// ErrorClassValidation covers structural and reference problems found
	// before any input is collected.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassInput covers missing, unconvertible or cancelled inputs.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassLoader covers data sources that failed to produce a grid.
	ErrorClassLoader ErrorClass = "loader"

	// ErrorClassProcessor covers failures inside a map's processor chain.
	ErrorClassProcessor ErrorClass = "processor"

	// ErrorClassRender covers figure builder failures.
	ErrorClassRender ErrorClass = "render"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Phase is the phase that was being entered when the error occurred.
	Phase Phase `json:"phase"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// MapObject names the map whose chain failed.
	MapObject string `json:"map,omitempty"`

	// Processor is the failing processor name and Position its index in the
	// chain. Position is only meaningful when Processor is set.
	Processor string `json:"processor,omitempty"`
	Position  int    `json:"position,omitempty"`

	// Source is the data source that failed to load.
	Source string `json:"source,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var where []string
	if e.Source != "" {
		where = append(where, "source="+e.Source)
	}
	if e.MapObject != "" {
		where = append(where, "map="+e.MapObject)
	}
	if e.Processor != "" {
		where = append(where, fmt.Sprintf("processor=%s, position=%d", e.Processor, e.Position))
	}
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if len(where) > 0 {
		msg += " (" + strings.Join(where, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, phase Phase, message string, err error) *EngineError {
	return &EngineError{Class: class, Phase: phase, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return newError(ErrorClassValidation, PhaseValidated, message, err).WithCode(ErrCodeValidation)
}

// NewInputError creates a new input error.
func NewInputError(message string, err error) *EngineError {
	return newError(ErrorClassInput, PhaseInputsResolved, message, err)
}

// NewLoaderError creates a new loader error.
func NewLoaderError(message string, err error) *EngineError {
	return newError(ErrorClassLoader, PhaseDataLoaded, message, err).WithCode(ErrCodeLoadFailed)
}

// NewProcessorError creates a new processor error.
func NewProcessorError(message string, err error) *EngineError {
	return newError(ErrorClassProcessor, PhaseMapsBuilt, message, err).WithCode(ErrCodeProcessorFailed)
}

// NewRenderError creates a new render error.
func NewRenderError(message string, err error) *EngineError {
	return newError(ErrorClassRender, PhaseRendered, message, err).WithCode(ErrCodeRenderFailed)
}

// WithMap adds map context to an error.
func (e *EngineError) WithMap(name string) *EngineError {
	e.MapObject = name
	return e
}

// WithProcessor adds the failing processor and its chain position.
func (e *EngineError) WithProcessor(name string, position int) *EngineError {
	e.Processor = name
	e.Position = position
	return e
}

// WithSource adds data source context to an error.
func (e *EngineError) WithSource(name string) *EngineError {
	e.Source = name
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) (ErrorClass, bool) {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class, true
	}
	return "", false
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassValidation
}

// IsInput returns true if the error is classified as input.
func IsInput(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassInput
}

// IsLoader returns true if the error is classified as loader.
func IsLoader(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassLoader
}

// IsProcessor returns true if the error is classified as processor.
func IsProcessor(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassProcessor
}

// IsRender returns true if the error is classified as render.
func IsRender(err error) bool {
	c, ok := classOf(err)
	return ok && c == ErrorClassRender
}

// Common error codes.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodePolicyViolation = "POLICY_VIOLATION"
	ErrCodeMissingInput    = "MISSING_INPUT"
	ErrCodeConversion      = "CONVERSION_ERROR"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeLoadFailed      = "LOAD_FAILED"
	ErrCodeProcessorFailed = "PROCESSOR_FAILED"
	ErrCodeRenderFailed    = "RENDER_FAILED"
)

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories surfaced by the validation pipeline. Use errors.Is against these.
var (
	ErrValidationFailure = errors.New("validation failure")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternal          = errors.New("internal error")
)

// Error type names used on the wire.
const (
	ErrorTypeValidationFailure = "ValidationFailure"
	ErrorTypeInvalidRequest    = "InvalidRequest"
	ErrorTypeInternal          = "InternalError"
)

// Violation is a single schema violation located by a JSON pointer.
type Violation struct {
	Path         string
	Message      string
	InvalidValue any
}

func (v Violation) String() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationFailureError reports a document that does not match the schema registered
// for its declared type.
type ValidationFailureError struct {
	DocumentType string
	Violations   []Violation
}

func (e *ValidationFailureError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s does not match its schema: %s", e.DocumentType, strings.Join(parts, "; "))
}

func (e *ValidationFailureError) Unwrap() error {
	return ErrValidationFailure
}

// InvalidRequestError reports a schema-valid document that cannot be mapped into the
// typed policy model.
type InvalidRequestError struct {
	Problems []string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + strings.Join(e.Problems, "; ")
}

func (e *InvalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

// InternalError wraps failures that are not caused by the caller. Message is safe to
// log; Err carries the underlying cause.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

// Unwrap exposes both the category and the cause.
func (e *InternalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInternal}
	}
	return []error{ErrInternal, e.Err}
}

// ErrorType returns the wire name of the error category, or ErrorTypeInternal when the
// error does not belong to a caller-recoverable category.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, ErrValidationFailure):
		return ErrorTypeValidationFailure
	case errors.Is(err, ErrInvalidRequest):
		return ErrorTypeInvalidRequest
	default:
		return ErrorTypeInternal
	}
}

// ErrorDetail is one entry of the JSON error body returned by the management API.
// It intentionally avoids exposing internal details for InternalError entries.
type ErrorDetail struct {
	Message      string `json:"message"`                // Human-readable message (safe for logs)
	Type         string `json:"type"`                   // ValidationFailure, InvalidRequest or InternalError
	Path         string `json:"path,omitempty"`         // JSON pointer of the offending value
	InvalidValue any    `json:"invalidValue,omitempty"` // Offending value when known
	TraceID      string `json:"traceId,omitempty"`      // Optional trace/correlation ID
}

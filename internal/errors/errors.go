// Package errors provides error handling utilities.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type identifies the category of error
type Type string

const (
	// TypeValidation indicates rejected input
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeNotFound indicates an absent resource
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict indicates a duplicate or idempotency collision
	TypeConflict Type = "CONFLICT"

	// TypeImmutability indicates an attempted mutation of a write-once record
	TypeImmutability Type = "IMMUTABILITY_VIOLATION"

	// TypeSecurity indicates a forbidden IaC construct or credential misuse
	TypeSecurity Type = "SECURITY_VIOLATION"

	// TypeTimeout indicates a stage or wall-clock deadline expired
	TypeTimeout Type = "TIMEOUT"

	// TypeUpstream indicates a provider, catalog, or downstream failure
	TypeUpstream Type = "UPSTREAM_UNAVAILABLE"

	// TypeSubprocess indicates a non-zero exit from the IaC tool
	TypeSubprocess Type = "SUBPROCESS_FAILURE"

	// TypeTransform indicates a malformed plan document
	TypeTransform Type = "TRANSFORM_FAILURE"

	// TypeInternal indicates an unexpected error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the error type to an HTTP status code
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation, TypeSecurity:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeImmutability:
		return http.StatusMethodNotAllowed
	case TypeTimeout:
		return http.StatusGatewayTimeout
	case TypeUpstream:
		return http.StatusServiceUnavailable
	case TypeTransform, TypeSubprocess:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType checks if an error (anywhere in its chain) is of a specific type
func IsType(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// TypeOf returns the error type, or TypeInternal for untyped errors
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}

// Validation creates a validation error
func Validation(message string) *Error {
	return New(TypeValidation, message)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Conflict creates a conflict error
func Conflict(message string) *Error {
	return New(TypeConflict, message)
}

// Immutability creates an immutability violation error
func Immutability(operation string) *Error {
	return Newf(TypeImmutability, "results are immutable: %s is not allowed", operation)
}

// Security creates a security violation error
func Security(message string) *Error {
	return New(TypeSecurity, message)
}

// Timeout creates a timeout error
func Timeout(what string) *Error {
	return Newf(TypeTimeout, "%s exceeded its deadline", what)
}

// Upstream creates an upstream unavailable error
func Upstream(message string, cause error) *Error {
	return Wrap(TypeUpstream, message, cause)
}

// Subprocess creates a subprocess failure error
func Subprocess(message string, cause error) *Error {
	return Wrap(TypeSubprocess, message, cause)
}

// Transform creates a deterministic transform failure error
func Transform(message string, cause error) *Error {
	return Wrap(TypeTransform, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}

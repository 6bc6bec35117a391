// Package errors defines the typed error values returned by the workflow core.
// Route handlers translate codes into HTTP statuses; services never return raw
// database errors to callers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used across the service.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeRequestNotPending = "REQUEST_NOT_PENDING"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeExecutionFailed   = "EXECUTION_FAILED"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports that a resource does not exist.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %q not found", resource, id)
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "%s: %s", field, message)
}

// Code extracts the error code, defaulting to INTERNAL for unknown errors.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return Code(err) == code
}

// HTTPStatus maps an error code to its HTTP response status.
func HTTPStatus(err error) int {
	switch Code(err) {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusForbidden
	case ErrCodeInvalidTransition, ErrCodeRequestNotPending, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeExecutionFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

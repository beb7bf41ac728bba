// Package apperr defines the Brain's error taxonomy (§7): a small set of
// typed errors every layer can check against with errors.As, each mapped
// to an HTTP status for the API surface.
package apperr

import "net/http"

// Kind classifies an error for HTTP-status mapping and retry policy.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindUnauthorized        Kind = "unauthorized"
	KindUnavailable         Kind = "unavailable"
	KindTransient           Kind = "transient_error"
	KindInvalidResponseShape Kind = "invalid_response_shape"
	KindBreakerOpen         Kind = "breaker_open"
	KindToolExecution       Kind = "tool_execution_error"
	KindFatal               Kind = "fatal"
)

// httpStatus maps each Kind to its §7 status code.
var httpStatus = map[Kind]int{
	KindValidation:          http.StatusBadRequest,
	KindNotFound:            http.StatusNotFound,
	KindUnauthorized:        http.StatusUnauthorized,
	KindUnavailable:         http.StatusServiceUnavailable,
	KindTransient:           http.StatusBadGateway,
	KindInvalidResponseShape: http.StatusBadGateway,
	KindBreakerOpen:         http.StatusServiceUnavailable,
	KindToolExecution:       http.StatusOK,
	KindFatal:               http.StatusInternalServerError,
}

// Error is the taxonomy's concrete type. Message is human-readable and
// safe to surface to an API caller; Cause, if set, is logged but never
// serialized.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the status code this error maps to.
func (e *Error) HTTPStatus() int {
	if status, ok := httpStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller should fall through a fallback
// chain or rely on at-least-once redelivery (§7).
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

func new(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(message string) *Error { return new(KindValidation, message, nil) }
func NotFound(message string) *Error   { return new(KindNotFound, message, nil) }
func Unauthorized(message string) *Error { return new(KindUnauthorized, message, nil) }
func Unavailable(message string, cause error) *Error { return new(KindUnavailable, message, cause) }
func Transient(message string, cause error) *Error   { return new(KindTransient, message, cause) }
func InvalidResponseShape(message string) *Error { return new(KindInvalidResponseShape, message, nil) }
func BreakerOpen(provider string) *Error {
	return new(KindBreakerOpen, "circuit breaker open for provider "+provider, nil)
}
func ToolExecution(message string) *Error { return new(KindToolExecution, message, nil) }
func Fatal(message string, cause error) *Error { return new(KindFatal, message, cause) }

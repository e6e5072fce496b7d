// Package dErrors defines the domain error taxonomy shared across services.
// Errors carry a stable code that the HTTP layer maps onto a status and a
// JSON envelope; messages are operator-facing, never secret-bearing.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error.
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeUnauthorized   Code = "unauthorized"
	CodeReplayDetected Code = "replay_detected"
	CodeRateLimited    Code = "rate_limit_exceeded"
	CodeNotFound       Code = "not_found"
	CodeUpstream       Code = "upstream_error"
	CodeInternal       Code = "internal_error"
)

// DomainError is the error type produced by services. It wraps an optional
// cause so errors.Is/As keep working through the domain layer.
type DomainError struct {
	Code    Code
	Message string
	cause   error
}

func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.cause }

// New creates a domain error with no underlying cause.
func New(code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Wrap attaches a domain code and message to an underlying error.
func Wrap(err error, code Code, message string) *DomainError {
	return &DomainError{Code: code, Message: message, cause: err}
}

// CodeOf extracts the domain code from err, defaulting to CodeInternal for
// errors that did not originate in a service.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the operator-facing message for err.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a domain code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeReplayDetected:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUpstream:
		// Upstream tracker failures surface as internal errors to the
		// webhook provider; the provider owns retry semantics.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

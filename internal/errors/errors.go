// Package errors provides structured error handling for the OAuth core and
// the REST client, with HTTP status code mapping for the auth server.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeNotFound indicates no stored token exists for a user (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeRefreshFailed indicates a token refresh was attempted and failed (HTTP 502)
	TypeRefreshFailed ErrorType = "refresh_failed"
	// TypeRequestFailed indicates an outbound HTTP request failed with a non-retryable status
	TypeRequestFailed ErrorType = "request_failed"
	// TypeRetriesExhausted indicates the REST client gave up after the maximum attempts (HTTP 502)
	TypeRetriesExhausted ErrorType = "retries_exhausted"
	// TypeConfiguration indicates missing or invalid platform credentials (HTTP 500)
	TypeConfiguration ErrorType = "configuration"
	// TypeValidation indicates invalid caller input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeInternal indicates an unexpected server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
// Status carries the upstream HTTP status for request_failed errors.
type Error struct {
	Type    ErrorType
	Message string
	Status  int
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeNotFound:
		return http.StatusNotFound
	case TypeValidation:
		return http.StatusBadRequest
	case TypeRefreshFailed, TypeRetriesExhausted:
		return http.StatusBadGateway
	case TypeRequestFailed:
		if e.Status != 0 {
			return e.Status
		}
		return http.StatusBadGateway
	case TypeConfiguration, TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NotFound creates a new not-found error for a missing stored token.
func NotFound(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// RefreshFailed creates an error for a failed token refresh, wrapping the cause.
func RefreshFailed(message string, cause error) *Error {
	return &Error{
		Type:    TypeRefreshFailed,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// RequestFailed creates an error carrying the upstream HTTP status and message.
func RequestFailed(status int, message string) *Error {
	return &Error{
		Type:    TypeRequestFailed,
		Message: message,
		Status:  status,
		Context: make(map[string]any),
	}
}

// RetriesExhausted creates an error for a request that used up all attempts.
func RetriesExhausted(message string, cause error) *Error {
	return &Error{
		Type:    TypeRetriesExhausted,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// Configuration creates an error for missing or invalid platform credentials.
func Configuration(message string) *Error {
	return &Error{
		Type:    TypeConfiguration,
		Message: message,
		Context: make(map[string]any),
	}
}

// Validation creates a new validation error (HTTP 400).
func Validation(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// Internal creates a new internal error (HTTP 500).
func Internal(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsType reports whether err is a structured error of the given type.
func IsType(err error, t ErrorType) bool {
	var structured *Error
	return errors.As(err, &structured) && structured.Type == t
}

// StatusOf extracts the upstream HTTP status from a request_failed error.
// Returns (0, false) when err carries no status.
func StatusOf(err error) (int, bool) {
	var structured *Error
	if errors.As(err, &structured) && structured.Status != 0 {
		return structured.Status, true
	}
	return 0, false
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged.
// Otherwise wraps it as an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return Internal("internal server error", err)
}

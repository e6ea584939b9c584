// Package errors provides the shared error taxonomy for wiki access.
// Higher layers inspect these types with errors.As to decide whether to
// retry, propagate, or fall back to another protocol.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// NetworkKind classifies a transport-level failure.
type NetworkKind string

const (
	NetworkTimeout           NetworkKind = "timeout"
	NetworkConnectionRefused NetworkKind = "connection-refused"
	NetworkDNS               NetworkKind = "dns"
	NetworkOther             NetworkKind = "network"
)

// NetworkError is a failure that happened before any HTTP response was read.
// It is the only retryable category.
type NetworkError struct {
	Kind     NetworkKind
	URL      string
	Attempts int // set once the retry budget is spent
	Err      error
}

func (e *NetworkError) Error() string {
	var what string
	switch e.Kind {
	case NetworkTimeout:
		what = "request timed out"
	case NetworkConnectionRefused:
		what = "connection refused"
	case NetworkDNS:
		what = "DNS lookup failed"
	default:
		what = "network error"
	}
	if e.Attempts > 0 {
		return fmt.Sprintf("%s for %s after %d attempts: %v", what, e.URL, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s for %s: %v", what, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a completed request whose status was not 2xx. Never retried.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.Status, e.URL, truncate(e.Body, 500))
}

// DecodeError is a 2xx response whose body was not the expected JSON.
type DecodeError struct {
	URL     string
	RawBody string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed JSON from %s: %v (body: %s)", e.URL, e.Err, truncate(e.RawBody, 200))
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DiscoveryMessage is the user-facing text for a failed wiki discovery.
const DiscoveryMessage = "Failed to determine wiki info. Please ensure the URL is correct and the wiki is accessible."

// WikiDiscoveryError means no API layout could be found for a URL.
type WikiDiscoveryError struct {
	URL string
	Err error // last probe failure, may be nil
}

func (e *WikiDiscoveryError) Error() string {
	return DiscoveryMessage
}

func (e *WikiDiscoveryError) Unwrap() error { return e.Err }

// CSRFAcquisitionError means a write needed a CSRF token and none could be obtained.
type CSRFAcquisitionError struct {
	Site string
}

func (e *CSRFAcquisitionError) Error() string {
	return fmt.Sprintf("failed to obtain CSRF token for %s", e.Site)
}

// APIError is the legacy API error envelope {"error":{"code","info"}}.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Info)
}

// UnknownResponseError is a legacy write response with neither a result nor an error.
type UnknownResponseError struct {
	Action string
	Body   string
}

func (e *UnknownResponseError) Error() string {
	return fmt.Sprintf("unknown response from %s: %s", e.Action, truncate(e.Body, 200))
}

// NotFoundError indicates an entity was not found.
type NotFoundError struct {
	EntityType  string // "wiki", "page", "revision", "file"
	Identifier  string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.EntityType, e.Identifier)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(e.Suggestions, ", "))
	}
	return msg
}

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(entityType, identifier string) *NotFoundError {
	return &NotFoundError{
		EntityType: entityType,
		Identifier: identifier,
	}
}

// ValidationError indicates invalid input parameters.
type ValidationError struct {
	Field   string // field name that failed validation
	Value   string // the invalid value (may be empty for sensitive data)
	Message string // human-readable error message
}

func (e *ValidationError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("validation failed for %s=%q: %s", e.Field, e.Value, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsNotFound returns true if err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return stderrors.As(err, &target)
}

// IsValidation returns true if err wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return stderrors.As(err, &target)
}

// HTTPStatus returns the status of a wrapped HTTPError, or 0.
func HTTPStatus(err error) int {
	var target *HTTPError
	if stderrors.As(err, &target) {
		return target.Status
	}
	return 0
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

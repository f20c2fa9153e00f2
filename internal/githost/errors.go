package githost

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies remote failures. Values are stable strings so they can be
// logged and serialized as-is.
type Code string

const (
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeRemote       Code = "REMOTE_ERROR"
	CodeUnknown      Code = "UNKNOWN"
)

// AuthError means the credential is missing, expired or lacks scope.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authentication failed (status %d)", e.Status)
	}
	return fmt.Sprintf("authentication failed (status %d): %s", e.Status, e.Message)
}

// NotFoundError means a branch, file, fork or repository does not exist where expected.
type NotFoundError struct {
	Resource string
	Message  string
}

func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Resource + " not found"
}

// TimeoutError is returned when a single remote call exceeds its bound.
type TimeoutError struct {
	Bound time.Duration
	URL   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Bound)
}

// ConflictError covers stale or missing blob SHAs and refs that already exist.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Message }

// RateLimitError is returned instead of AuthError when a 403/429 carries
// exhausted rate-limit headers.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded, retry after %s: %s", e.RetryAfter, e.Message)
	}
	return "rate limit exceeded: " + e.Message
}

// APIError is any other non-2xx response.
type APIError struct {
	Status int
	Method string
	URL    string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// CodeOf classifies err. Wrapped errors are unwrapped.
func CodeOf(err error) Code {
	var (
		authErr     *AuthError
		notFoundErr *NotFoundError
		timeoutErr  *TimeoutError
		conflictErr *ConflictError
		rateErr     *RateLimitError
		apiErr      *APIError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return CodeUnauthorized
	case errors.As(err, &rateErr):
		return CodeRateLimit
	case errors.As(err, &notFoundErr):
		return CodeNotFound
	case errors.As(err, &timeoutErr):
		return CodeTimeout
	case errors.As(err, &conflictErr):
		return CodeConflict
	case errors.As(err, &apiErr):
		return CodeRemote
	default:
		return CodeUnknown
	}
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

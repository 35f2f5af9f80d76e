package client

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response from the Huddle API. Message carries
// the server's error field when the body was JSON, the raw body
// otherwise. Path identifies the endpoint that failed, which matters
// when a wrapped error bubbles up through the session coordinator.
type HTTPError struct {
	StatusCode int
	Path       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.Path, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsAuthError returns true for 401 responses — the stored session token
// is invalid or expired and the user must log in again.
func IsAuthError(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

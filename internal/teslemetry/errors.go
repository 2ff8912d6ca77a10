package teslemetry

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors for the Teslemetry client.
var (
	// ErrUnauthorized is returned when the access token is missing, expired or lacks scope.
	ErrUnauthorized = errors.New("teslemetry: unauthorized")

	// ErrNotFound is returned when the product or endpoint does not exist.
	ErrNotFound = errors.New("teslemetry: not found")

	// ErrRateLimited is returned when the API rejects a request with 429.
	ErrRateLimited = errors.New("teslemetry: rate limited")

	// ErrRequestFailed is returned for transport failures and other non-2xx responses.
	ErrRequestFailed = errors.New("teslemetry: request failed")

	// ErrUnknownTopic is returned when polling a topic the site does not serve.
	ErrUnknownTopic = errors.New("teslemetry: unknown polling topic")
)

// APIError is a non-2xx response from the Teslemetry API.
// It unwraps to one of the sentinel errors above.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("teslemetry: %s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("teslemetry: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap maps the status code to a sentinel error for errors.Is.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrRequestFailed
	}
}

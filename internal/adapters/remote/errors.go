package remote

import (
	"errors"
	"fmt"
)

// ErrUnavailable wraps transport failures: the store could not be reached
// or the exchange broke off.
var ErrUnavailable = errors.New("roster store unavailable")

// ErrMalformed is returned when a successful response cannot be decoded.
var ErrMalformed = errors.New("malformed response from roster store")

// APIError is a non-success HTTP status or a payload whose status is not "ok".
type APIError struct {
	StatusCode int
	Message    string // server supplied, may be empty
	// RemainingSeconds is set when the store refuses a login during lockout.
	RemainingSeconds int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("roster store returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("roster store returned status %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the server-supplied message carried by err, or
// fallback for transport failures, malformed payloads and silent errors.
func UserMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

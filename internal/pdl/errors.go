package pdl

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a non-2xx response from the upstream API, preserving the HTTP
// status so callers can distinguish rate limits, auth failures, and
// not-found from transient server errors.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("pdl: upstream HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimit reports whether the upstream rejected the call for quota
// reasons (HTTP 429).
func (e *Error) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// IsNotFound reports whether the upstream found no matching record (HTTP 404).
func (e *Error) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// AsError unwraps err into an upstream *Error, or returns nil.
func AsError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}

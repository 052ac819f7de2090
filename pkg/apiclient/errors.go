package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned while the circuit breaker refuses calls after repeated failures.
	ErrCircuitOpen = errors.New("processing API unavailable: circuit breaker open")
	// ErrMalformedResponse is returned when a 2xx response body is not a JSON object.
	ErrMalformedResponse = errors.New("malformed response from processing API")
)

// APIError is a non-2xx answer from the processing API.
type APIError struct {
	StatusCode int
	Message    string
	Body       any
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("processing API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("processing API returned status %d: %s", e.StatusCode, e.Message)
}

// Details exposes the decoded error payload so it can be attached to a failed step result.
func (e *APIError) Details() any {
	return e.Body
}

// Temporary reports whether the error is worth tripping the circuit breaker for.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

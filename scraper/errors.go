package scraper

import (
	"errors"
	"fmt"
)

// ErrNoIdentifiers is returned when every discovery strategy came back empty.
var ErrNoIdentifiers = errors.New("no models found on this page")

// categorized errors carry the label used for the errors_total metric.
type categorized interface {
	error
	Category() string
}

// ErrTimeout indicates a request that ran out of time.
type ErrTimeout struct{ Err error }

func (e ErrTimeout) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrTimeout) Unwrap() error    { return e.Err }
func (e ErrTimeout) Category() string { return "timeout" }

// ErrConnection indicates the host could not be reached or the body could
// not be read.
type ErrConnection struct{ Err error }

func (e ErrConnection) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrConnection) Unwrap() error    { return e.Err }
func (e ErrConnection) Category() string { return "connection" }

// ErrForbidden indicates HTTP 403.
type ErrForbidden struct{ Err error }

func (e ErrForbidden) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrForbidden) Unwrap() error    { return e.Err }
func (e ErrForbidden) Category() string { return "forbidden" }

// ErrNotFound indicates HTTP 404. Endpoint candidates answer this routinely.
type ErrNotFound struct{ Err error }

func (e ErrNotFound) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrNotFound) Unwrap() error    { return e.Err }
func (e ErrNotFound) Category() string { return "not_found" }

// ErrRateLimited indicates HTTP 429.
type ErrRateLimited struct{ Err error }

func (e ErrRateLimited) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrRateLimited) Unwrap() error    { return e.Err }
func (e ErrRateLimited) Category() string { return "rate_limited" }

// ErrBadPayload indicates a success status whose body could not be used:
// not JSON, a non-zero API code, or an empty asset response.
type ErrBadPayload struct{ Err error }

func (e ErrBadPayload) Error() string    { return e.Category() + ": " + e.Err.Error() }
func (e ErrBadPayload) Unwrap() error    { return e.Err }
func (e ErrBadPayload) Category() string { return "bad_payload" }

// ErrStatus is any other non-success HTTP status.
type ErrStatus struct{ StatusCode int }

func (e ErrStatus) Error() string    { return fmt.Sprintf("http status %d", e.StatusCode) }
func (e ErrStatus) Category() string { return "status" }

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var c categorized
	if errors.As(err, &c) {
		return c.Category()
	}
	return "other"
}

// retryable reports whether another attempt could succeed. Missing or
// forbidden resources and unusable bodies are final.
func retryable(err error) bool {
	switch errorTypeLabel(err) {
	case "forbidden", "not_found", "bad_payload":
		return false
	}
	return true
}

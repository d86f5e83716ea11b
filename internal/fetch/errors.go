package fetch

import "errors"

// Fetch failure errors.
// A Result never carries a raw transport error alone; it carries a
// FailureKind whose Err() is one of these, so callers can branch with errors.Is.
var (
	// ErrTimeout is returned when an attempt exceeded the request timeout.
	ErrTimeout = errors.New("request timed out")

	// ErrConnection is returned when the connection could not be established
	// or was dropped mid-response.
	ErrConnection = errors.New("connection error")

	// ErrHTTPStatus is returned for a non-2xx response after retries.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrUnexpected is returned for failures outside the network taxonomy,
	// such as a malformed URL.
	ErrUnexpected = errors.New("unexpected fetch error")

	// ErrCanceled is returned when the caller's context ended the fetch.
	ErrCanceled = errors.New("fetch canceled")

	// ErrInvalidCacheKey is returned when a cache key would escape the cache root.
	ErrInvalidCacheKey = errors.New("invalid cache key")
)

// FailureKind classifies why a fetch produced no data.
type FailureKind int

const (
	// FailureNone means the fetch succeeded.
	FailureNone FailureKind = iota

	// FailureTimeout means every attempt timed out, or the last one did.
	FailureTimeout

	// FailureConnection means the transport failed (DNS, refused, reset).
	FailureConnection

	// FailureHTTP means the server answered with a non-2xx status.
	FailureHTTP

	// FailureUnexpected means the request could not be built or sent for
	// reasons retrying cannot fix.
	FailureUnexpected

	// FailureCanceled means the context was canceled before completion.
	FailureCanceled
)

// String returns a short description of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "ok"
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection error"
	case FailureHTTP:
		return "http error"
	case FailureUnexpected:
		return "unexpected error"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Err returns the sentinel error for this kind, or nil for FailureNone.
func (k FailureKind) Err() error {
	switch k {
	case FailureNone:
		return nil
	case FailureTimeout:
		return ErrTimeout
	case FailureConnection:
		return ErrConnection
	case FailureHTTP:
		return ErrHTTPStatus
	case FailureCanceled:
		return ErrCanceled
	default:
		return ErrUnexpected
	}
}

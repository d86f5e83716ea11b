package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while still printing a readable message.
var (
	// ErrNoBaseURL is returned when the source base URL is empty.
	ErrNoBaseURL = errors.New("no base URL specified")

	// ErrNoCacheDir is returned when no cache directory is configured.
	ErrNoCacheDir = errors.New("no cache directory specified")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRateLimit is returned when the rate limit is negative.
	// Use 0 to disable request spacing.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidMaxRetries is returned when the retry count is negative.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be non-negative")

	// ErrInvalidBackoffFactor is returned when the backoff factor is negative.
	ErrInvalidBackoffFactor = errors.New("invalid backoff factor: must be non-negative")

	// ErrInvalidHTMLCacheTTL is returned when the raw page TTL is negative.
	// Use 0 to refetch every page.
	ErrInvalidHTMLCacheTTL = errors.New("invalid HTML cache TTL: must be non-negative")

	// ErrInvalidMaxPages is returned when the activity page cap is not positive.
	ErrInvalidMaxPages = errors.New("invalid max activity pages: must be positive")

	// ErrInvalidCheckpointEvery is returned when the checkpoint interval is not positive.
	ErrInvalidCheckpointEvery = errors.New("invalid checkpoint interval: must be positive")

	// ErrInvalidProgressEvery is returned when the progress interval is not positive.
	ErrInvalidProgressEvery = errors.New("invalid progress interval: must be positive")
)

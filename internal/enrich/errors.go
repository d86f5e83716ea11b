package enrich

import "errors"

var (
	// ErrNoProvider is returned when no enrichment provider is configured.
	ErrNoProvider = errors.New("no enrichment provider configured")

	// ErrThrottled is returned when a provider answers with a rate-limit
	// notice instead of data.
	ErrThrottled = errors.New("provider rate limit reached")
)

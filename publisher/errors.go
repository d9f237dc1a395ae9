package publisher

import "errors"

// Sentinel errors for the publisher package.
var (
	// ErrTooManyMissing is returned when the missing endpoint limit is hit.
	ErrTooManyMissing = errors.New("publisher: too many missing relationship endpoints")

	// ErrNoStore is returned when no store is configured.
	ErrNoStore = errors.New("publisher: no store configured")

	// Test errors for use in unit tests.
	errTestStore   = errors.New("test: store failure")
	errTestHandler = errors.New("test: handler failure")
)

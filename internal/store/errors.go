package store

import "errors"

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("cache document not found")

	// ErrCorruptCache is returned when a document exists but cannot be decoded.
	// The file has already been quarantined when this is returned.
	ErrCorruptCache = errors.New("corrupt cache document")

	// ErrInvalidManagerID is returned for manager codes that cannot name a shard file.
	ErrInvalidManagerID = errors.New("invalid manager id")

	// ErrRepairFailed is returned when a quarantined document cannot be repaired.
	ErrRepairFailed = errors.New("cannot repair document")
)

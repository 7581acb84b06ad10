package stores

import "errors"

// Sentinel errors shared by all stores. Callers match with errors.Is.
var (
	// ErrNotFound: the record does not exist or is not owned by the caller
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict: a conditional write lost the race; the caller
	// holds a stale version and should reread before retrying
	ErrVersionConflict = errors.New("version conflict")

	// ErrStorageUnavailable: the backend failed for infrastructure reasons;
	// retryable with backoff, never retried inside the store itself
	ErrStorageUnavailable = errors.New("storage unavailable")
)

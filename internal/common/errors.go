package common

import "errors"

// Sentinel errors. Callers should use errors.Is to match these values.
var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Storage transaction preconditions.
	ErrTransactionOpen = errors.New("transaction already open")
	ErrNoTransaction   = errors.New("no open transaction")

	// Collection lifecycle.
	ErrCollectionClosed = errors.New("collection is closed")

	// Schema changes. ErrAbortSchemaMod reports that the user declined a
	// full-sync-forcing change; it is a signal, not a failure.
	ErrAbortSchemaMod = errors.New("schema modification aborted")

	// Scheduler configuration.
	ErrUnsupportedSchedVersion = errors.New("unsupported scheduler version")

	// Card attribute validation.
	ErrInvalidFlag = errors.New("flag must be between 0 and 7")
)

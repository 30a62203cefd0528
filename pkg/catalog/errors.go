package catalog

import "errors"

var (
	// ErrUnknownOperation is returned for a synchronization operation outside the five known ones
	ErrUnknownOperation = errors.New("unknown catalog operation")

	// ErrStorageFailure wraps errors coming from the record store
	ErrStorageFailure = errors.New("catalog storage failure")

	// ErrRecordNotFound is returned by stores for an unknown record id
	ErrRecordNotFound = errors.New("catalog record not found")
)

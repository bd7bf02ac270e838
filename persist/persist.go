package persist

import "errors"

// Common errors.
var (
	// ErrClosed is returned when an archive is used after Close.
	ErrClosed = errors.New("archive closed")

	// ErrNotFound is returned when a message ID is not in the archive.
	ErrNotFound = errors.New("message not found")
)

// Package source loads analysis snapshots handed over by the analysis service.
// This is part of the Imperative Shell - it performs I/O and returns pure domain values.
package source

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrUnsupportedFormat is returned when a file extension or format name is not recognized.
	ErrUnsupportedFormat = errors.New("unsupported analysis format")

	// ErrInvalidInput is returned when an analysis document cannot be decoded.
	ErrInvalidInput = errors.New("invalid analysis input")

	// ErrNotFound is returned when an analysis file does not exist.
	ErrNotFound = errors.New("analysis not found")

	// ErrConnectionFailed is returned when a snapshot database cannot be opened.
	ErrConnectionFailed = errors.New("snapshot connection failed")

	// ErrMigrationFailed is returned when the snapshot schema cannot be applied.
	ErrMigrationFailed = errors.New("snapshot migration failed")

	// ErrQueryFailed is returned when reading a snapshot fails.
	ErrQueryFailed = errors.New("snapshot query failed")
)

// SourceError wraps errors with the operation and location that failed.
type SourceError struct {
	Op       string // Operation that failed (e.g., "LoadFile")
	Location string // File path or DSN, if applicable
	Message  string
	Err      error
}

func (e *SourceError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Location, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(op, location, message string, err error) *SourceError {
	return &SourceError{
		Op:       op,
		Location: location,
		Message:  message,
		Err:      err,
	}
}

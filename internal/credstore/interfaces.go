package credstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound reports that a store holds no credential record. A record
// whose token is empty or the literal "none" is treated the same as a
// missing one.
var ErrNotFound = errors.New("no credential record")

// PersistenceError reports that the local storage backend could not be read
// or written. It is fatal to the calling operation and never retried.
type PersistenceError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("credential store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store reads and writes credential records to persistent storage.
//
// Login flows require writable storage.
type Store interface {
	// Read returns the stored record. Returns ErrNotFound if no record is
	// persisted, or a *PersistenceError if the backend cannot be read.
	Read(ctx context.Context) (Record, error)

	// Write atomically replaces the persisted record. Returns a
	// *PersistenceError if the backend is read-only (e.g., environment
	// variables) or if the write operation fails.
	Write(ctx context.Context, rec Record) error
}

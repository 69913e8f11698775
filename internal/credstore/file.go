package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore provides atomic file-based record storage with secure permissions.
// Writes use temp file + rename for crash safety, so readers never observe a
// partially written record.
type FileStore struct {
	filePath string
}

// Compile-time check to ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent
// directories with 0700 permissions if they don't exist.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, &PersistenceError{Op: "write", Err: err}
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Path returns the backing file path. The facade derives its advisory lock
// file from it.
func (f *FileStore) Path() string { return f.filePath }

// Read returns the stored record. A missing or empty file is ErrNotFound,
// never an error. Returns a *PersistenceError if the file exists but cannot
// be read or has group/world-readable permissions.
func (f *FileStore) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	// Check file permissions before reading
	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, &PersistenceError{Op: "read", Err: err}
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return Record{}, &PersistenceError{
			Op:  "read",
			Err: fmt.Errorf("insecure permissions on %s: %04o (expected owner-only)", f.filePath, perm),
		}
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return Record{}, &PersistenceError{Op: "read", Err: err}
	}

	rec, err := ParseRecord(data)
	if err != nil {
		return Record{}, &PersistenceError{Op: "read", Err: fmt.Errorf("parsing %s: %w", f.filePath, err)}
	}
	if rec.Absent() {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Write atomically replaces the record using temp file + rename for crash
// safety. The temp file is created in the same directory so the rename stays
// on one filesystem. File permissions end up 0600 (owner read/write only).
func (f *FileStore) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, ".storedsafe-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	// Restrict permissions before any record bytes hit the disk
	if err := tempFile.Chmod(0600); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}

	if _, err := tempFile.Write(MarshalRecord(rec)); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}

	// Atomic rename to final location
	if err := os.Rename(tempName, f.filePath); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}

	return nil
}

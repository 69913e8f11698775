package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func testRecord() Record {
	return Record{
		Server:    "safe.example.com",
		Token:     "abc123",
		IssuedAt:  time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		ExpiresAt: time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC),
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".storedsafe-client.rc")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	want := testRecord()
	if err := store.Write(context.Background(), want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nope.rc"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Read(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".storedsafe-client.rc")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.Write(context.Background(), testRecord()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %04o, want 0600", perm)
	}
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".storedsafe-client.rc")
	if err := os.WriteFile(path, MarshalRecord(testRecord()), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Read(context.Background())
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %v", err)
	}
}

func TestFileStoreAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".storedsafe-client.rc")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	first := testRecord()
	if err := store.Write(context.Background(), first); err != nil {
		t.Fatalf("Write: %v", err)
	}

	second := first
	second.Token = "fresh456"
	if err := store.Write(context.Background(), second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Token != "fresh456" {
		t.Errorf("token = %q, want replacement", got.Token)
	}

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the rc file in %s, found %d entries", dir, len(entries))
	}
}

func TestFileStoreAbsentRecordReadsAsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".storedsafe-client.rc")
	if err := os.WriteFile(path, []byte("mysite:safe.example.com\ntoken:none\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	_, err = store.Read(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for token:none, got %v", err)
	}
}

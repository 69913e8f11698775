package credstore

import (
	"context"
	"errors"
	"testing"
)

func TestEnvStoreRead(t *testing.T) {
	t.Setenv("TEST_STOREDSAFE_TOKEN", "envtoken42")

	store, err := NewEnvStore("safe.example.com", "TEST_STOREDSAFE_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}

	rec, err := store.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rec.Server != "safe.example.com" || rec.Token != "envtoken42" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestEnvStoreUnset(t *testing.T) {
	t.Setenv("TEST_STOREDSAFE_TOKEN", "")

	store, err := NewEnvStore("safe.example.com", "TEST_STOREDSAFE_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}

	_, err = store.Read(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEnvStoreWriteReadOnly(t *testing.T) {
	t.Setenv("TEST_STOREDSAFE_TOKEN", "envtoken42")

	store, err := NewEnvStore("safe.example.com", "TEST_STOREDSAFE_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}

	err = store.Write(context.Background(), Record{Server: "safe.example.com", Token: "new"})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("expected *PersistenceError, got %v", err)
	}
}

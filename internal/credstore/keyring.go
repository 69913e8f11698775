package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore provides OS-native secure credential storage for records.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
// The record is serialized in the rc text format as the keyring value.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// using the given service and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the record from the system keyring. Returns ErrNotFound if
// no entry exists or the stored record is absent.
func (k *KeyringStore) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	data, err := keyring.Get(k.service, k.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, &PersistenceError{Op: "read", Err: err}
	}

	rec, err := ParseRecord([]byte(data))
	if err != nil {
		return Record{}, &PersistenceError{Op: "read", Err: fmt.Errorf("parsing keyring entry: %w", err)}
	}
	if rec.Absent() {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Write persists the record to the system keyring, overwriting any existing
// value.
func (k *KeyringStore) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Set(k.service, k.user, string(MarshalRecord(rec))); err != nil {
		return &PersistenceError{Op: "write", Err: err}
	}
	return nil
}

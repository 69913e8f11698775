package credstore

import (
	"context"
	"fmt"
	"os"
)

// TokenEnvVar is the environment variable the original lookup plugin reads
// the session token from.
const TokenEnvVar = "STOREDSAFE_TOKEN"

// EnvStore provides read-only access to a token stored in an environment
// variable. Suitable for statically provisioned tokens but not for login
// flows (those require writable storage).
type EnvStore struct {
	server string
	envKey string
}

// Compile-time check to ensure EnvStore implements Store
var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore reading the token from the given
// environment variable. The server address comes from configuration since
// the variable holds only the token.
func NewEnvStore(server, envKey string) (*EnvStore, error) {
	if server == "" {
		return nil, fmt.Errorf("server cannot be empty")
	}
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		server: server,
		envKey: envKey,
	}, nil
}

// Read returns a record built from the environment variable. Returns
// ErrNotFound if the variable is unset or empty.
func (e *EnvStore) Read(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	token := os.Getenv(e.envKey)
	rec := Record{Server: e.server, Token: token}
	if rec.Absent() {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return &PersistenceError{Op: "write", Err: fmt.Errorf("environment variable storage is read-only")}
}

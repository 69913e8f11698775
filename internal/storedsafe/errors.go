package storedsafe

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that the requested object or field does not exist (or
// the caller is not allowed to see it, which the server reports identically).
var ErrNotFound = errors.New("object or field not found")

// TransportError reports a connectivity failure reaching the StoredSafe
// server. The client retries the request once with backoff before surfacing
// it; callers must not keep retrying, and in particular must not treat it as
// a rejected token.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports that the server rejected the supplied credentials or
// token. Never retried internally with the same secrets.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication rejected (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("authentication rejected (HTTP %d)", e.StatusCode)
}

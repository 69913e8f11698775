// Package lookup resolves "objectid/fieldname" paths to field values, the
// read surface a templating or automation caller consumes.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/florianilch/storedsafe-tokenhandler/internal/storedsafe"
	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

// ObjectReader fetches one field of one object. Implemented by
// *storedsafe.Client.
type ObjectReader interface {
	GetField(ctx context.Context, token, objectID, field string) (string, error)
}

// TokenProvider hands out valid tokens and replaces rejected ones.
// Implemented by *tokenhandler.Handler.
type TokenProvider interface {
	EnsureValid(ctx context.Context) (tokenhandler.Result, error)
	Refresh(ctx context.Context, rejected string) (tokenhandler.Result, error)
}

// Resolver resolves object paths against the StoredSafe API with automatic
// token replacement on rejection.
type Resolver struct {
	tokens  TokenProvider
	objects ObjectReader
}

// New creates a Resolver.
func New(tokens TokenProvider, objects ObjectReader) (*Resolver, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token provider")
	}
	if objects == nil {
		return nil, fmt.Errorf("missing object reader")
	}
	return &Resolver{tokens: tokens, objects: objects}, nil
}

// Lookup resolves a path of the form "<objectid>/<fieldname>". The reserved
// field name "download" returns the raw content of a file object. If the
// token is rejected mid-lookup the resolver refreshes it once and retries;
// a second rejection surfaces as the *storedsafe.AuthError.
func (r *Resolver) Lookup(ctx context.Context, objectPath string) (string, error) {
	objectID, field, err := splitPath(objectPath)
	if err != nil {
		return "", err
	}

	res, err := r.tokens.EnsureValid(ctx)
	if err != nil {
		return "", err
	}

	value, err := r.objects.GetField(ctx, res.Record.Token, objectID, field)
	var authErr *storedsafe.AuthError
	if errors.As(err, &authErr) {
		// The token went invalid between the liveness check and the fetch
		// (or a stale token was served in lenient mode). One fresh login,
		// one retry.
		res, err = r.tokens.Refresh(ctx, res.Record.Token)
		if err != nil {
			return "", err
		}
		value, err = r.objects.GetField(ctx, res.Record.Token, objectID, field)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func splitPath(objectPath string) (objectID, field string, err error) {
	objectID, field, ok := strings.Cut(objectPath, "/")
	if !ok || objectID == "" || field == "" {
		return "", "", fmt.Errorf("invalid object path %q: want <objectid>/<fieldname>", objectPath)
	}
	return objectID, field, nil
}

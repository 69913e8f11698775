package tokenhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
)

// Mode is the policy for cached tokens when the server is unreachable.
type Mode string

const (
	// ModeStrict fails with the transport error.
	ModeStrict Mode = "strict"
	// ModeLenient serves the cached (possibly stale) token with a warning.
	ModeLenient Mode = "lenient"
)

// lockRetryDelay is the poll interval while waiting for the advisory lock.
const lockRetryDelay = 100 * time.Millisecond

// LockTimeoutError reports that the advisory lock around the credential file
// could not be acquired within the configured bound. The caller may retry
// the whole operation.
type LockTimeoutError struct {
	Path    string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock on %s", e.Timeout, e.Path)
}

// Result is a validated credential. Stale is set only in lenient mode when
// the server was unreachable and the cached token is served unverified.
type Result struct {
	Record credstore.Record
	Stale  bool
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithMode sets the unreachable-server policy. Default is ModeStrict.
func WithMode(mode Mode) HandlerOption {
	return func(h *Handler) { h.mode = mode }
}

// WithLock enables cross-process mutual exclusion via an advisory lock file.
// A zero timeout waits indefinitely.
func WithLock(path string, timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.lockPath = path
		h.lockTimeout = timeout
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// Handler is the facade callers invoke: check the cached token, log in when
// needed, hand back a valid token.
type Handler struct {
	store     credstore.Store
	validator Validator
	login     LoginFlow

	mode        Mode
	lockPath    string
	lockTimeout time.Duration
	logger      *slog.Logger

	group singleflight.Group
}

// New creates a Handler.
func New(store credstore.Store, validator Validator, login LoginFlow, opts ...HandlerOption) (*Handler, error) {
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	if validator == nil {
		return nil, fmt.Errorf("missing validator")
	}
	if login == nil {
		return nil, fmt.Errorf("missing login flow")
	}

	h := &Handler{
		store:     store,
		validator: validator,
		login:     login,
		mode:      ModeStrict,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// EnsureValid returns a valid credential, logging in if the cached one is
// absent or rejected. Concurrent callers share a single login; all of them
// receive the resulting token.
func (h *Handler) EnsureValid(ctx context.Context) (Result, error) {
	v, err, _ := h.group.Do("ensure", func() (any, error) {
		return h.ensure(ctx, false, "")
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Refresh obtains a new login after the given token was rejected mid-use
// (e.g., a 403 on an object fetch). If another process already replaced the
// rejected token, the replacement is revalidated and reused instead of
// logging in again. An empty rejected token forces a login unconditionally.
func (h *Handler) Refresh(ctx context.Context, rejected string) (Result, error) {
	v, err, _ := h.group.Do("refresh:"+rejected, func() (any, error) {
		return h.ensure(ctx, rejected == "", rejected)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// Check classifies the cached credential without logging in. An absent
// record is StatusInvalid, never an error.
func (h *Handler) Check(ctx context.Context) (Status, error) {
	rec, err := h.store.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return StatusInvalid, nil
	}
	if err != nil {
		return StatusInvalid, err
	}
	return h.validator.Check(ctx, rec)
}

// ensure runs the read-check-login-write sequence under the advisory lock.
// The record is read after the lock is held, so a caller that waited on
// another process's login reuses the freshly written credential instead of
// authenticating again. A non-empty rejected token triggers a login unless
// the stored token already differs from it; force skips the check entirely.
func (h *Handler) ensure(ctx context.Context, force bool, rejected string) (Result, error) {
	unlock, err := h.acquireLock(ctx)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	logger := h.logger.With("invocation", uuid.NewString())

	rec, err := h.store.Read(ctx)
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		logger.DebugContext(ctx, "no cached credential, logging in")
	case err != nil:
		return Result{}, err
	case force:
		logger.DebugContext(ctx, "forced login", "server", rec.Server)
	case rejected != "" && rec.Token == rejected:
		logger.DebugContext(ctx, "cached token was rejected, logging in")
	default:
		status, checkErr := h.validator.Check(ctx, rec)
		switch status {
		case StatusValid:
			return Result{Record: rec}, nil
		case StatusUnreachable:
			if h.mode == ModeLenient {
				logger.WarnContext(ctx, "server unreachable, serving cached token unverified",
					"server", rec.Server, "error", checkErr)
				return Result{Record: rec, Stale: true}, nil
			}
			if checkErr == nil {
				checkErr = fmt.Errorf("server unreachable, token state unknown")
			}
			return Result{}, checkErr
		case StatusInvalid:
			logger.DebugContext(ctx, "cached token invalid, logging in", "server", rec.Server)
		}
	}

	fresh, err := h.login.Login(ctx)
	if err != nil {
		return Result{}, err
	}
	if fresh.Absent() {
		return Result{}, fmt.Errorf("login flow returned no token")
	}
	// Hand-edited lines in the old record survive the rewrite
	if len(fresh.Extra) == 0 {
		fresh.Extra = rec.Extra
	}

	if err := h.store.Write(ctx, fresh); err != nil {
		return Result{}, err
	}

	logger.InfoContext(ctx, "obtained fresh token", "server", fresh.Server)
	return Result{Record: fresh}, nil
}

// acquireLock takes the advisory file lock, bounded by the configured
// timeout. Returns a no-op release when locking is disabled.
func (h *Handler) acquireLock(ctx context.Context) (func(), error) {
	if h.lockPath == "" {
		return func() {}, nil
	}

	lockCtx := ctx
	if h.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, h.lockTimeout)
		defer cancel()
	}

	fileLock := flock.New(h.lockPath)
	locked, err := fileLock.TryLockContext(lockCtx, lockRetryDelay)
	if !locked {
		if lockCtx.Err() != nil && ctx.Err() == nil {
			return nil, &LockTimeoutError{Path: h.lockPath, Timeout: h.lockTimeout}
		}
		if err == nil {
			err = lockCtx.Err()
		}
		return nil, fmt.Errorf("acquiring lock on %s: %w", h.lockPath, err)
	}

	return func() { _ = fileLock.Unlock() }, nil
}

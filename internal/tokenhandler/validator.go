package tokenhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
)

// Status is the outcome of a token liveness check.
type Status int

const (
	// StatusValid means the token is usable as-is.
	StatusValid Status = iota
	// StatusInvalid means the token is expired, rejected, or absent.
	StatusInvalid
	// StatusUnreachable means the server could not be contacted, so the
	// token's liveness is unknown. Distinct from StatusInvalid: it must not
	// trigger a login on transient network errors.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// CheckMode selects how token liveness is established.
type CheckMode string

const (
	// CheckModeLocal inspects only the locally recorded expiry.
	CheckModeLocal CheckMode = "local"
	// CheckModeRemote asks the server whether the token is still accepted.
	CheckModeRemote CheckMode = "remote"
	// CheckModeBoth uses the local expiry as a cheap gate and confirms
	// remotely only when it passes.
	CheckModeBoth CheckMode = "both"
)

// AuthChecker probes the server for token liveness. Implemented by
// *storedsafe.Client.
type AuthChecker interface {
	CheckAuth(ctx context.Context, token string) (bool, error)
}

// Validator determines whether a cached credential is still usable.
type Validator interface {
	// Check classifies the record. StatusUnreachable is accompanied by the
	// underlying transport error; the other statuses carry no error. A
	// rejected token is a negative result, never an error.
	Check(ctx context.Context, rec credstore.Record) (Status, error)
}

// TokenValidator implements Validator with a configurable check mode.
type TokenValidator struct {
	mode    CheckMode
	checker AuthChecker
	// refreshBuffer treats tokens expiring within this window as already
	// invalid, so they are replaced before a caller hits a mid-run expiry.
	refreshBuffer time.Duration

	now func() time.Time
}

var _ Validator = (*TokenValidator)(nil)

// NewTokenValidator creates a TokenValidator. The checker may be nil only
// for CheckModeLocal.
func NewTokenValidator(mode CheckMode, checker AuthChecker, refreshBuffer time.Duration) (*TokenValidator, error) {
	switch mode {
	case CheckModeLocal:
	case CheckModeRemote, CheckModeBoth:
		if checker == nil {
			return nil, fmt.Errorf("check mode %q requires a remote checker", mode)
		}
	default:
		return nil, fmt.Errorf("unsupported check mode: %q", mode)
	}

	return &TokenValidator{
		mode:          mode,
		checker:       checker,
		refreshBuffer: refreshBuffer,
		now:           time.Now,
	}, nil
}

// Check implements Validator.
func (v *TokenValidator) Check(ctx context.Context, rec credstore.Record) (Status, error) {
	if rec.Absent() {
		return StatusInvalid, nil
	}

	if v.mode != CheckModeRemote {
		if rec.Expired(v.now(), v.refreshBuffer) {
			return StatusInvalid, nil
		}
		if v.mode == CheckModeLocal {
			// Unknown expiry passes the local check; only the remote modes
			// can tell more.
			return StatusValid, nil
		}
	}

	ok, err := v.checker.CheckAuth(ctx, rec.Token)
	if err != nil {
		return StatusUnreachable, err
	}
	if !ok {
		return StatusInvalid, nil
	}
	return StatusValid, nil
}

package tokenhandler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
)

// TokenService is the check/login capability an external token helper
// exposes. ScriptService is the one concrete adapter, shelling out to a
// helper script; the rest of the core stays free of process-spawning
// concerns.
type TokenService interface {
	// Check reports token validity: true for valid, false for invalid or
	// absent. Errors are reserved for the helper failing to run at all.
	Check(ctx context.Context) (bool, error)

	// Login obtains a fresh token and persists it through the helper's own
	// storage (the rc file).
	Login(ctx context.Context) error
}

// ScriptService runs an external token handler script through /bin/sh,
// mapping the exit-code protocol: 0 = valid/success, 1 = invalid, anything
// else = helper failure.
type ScriptService struct {
	scriptPath string
}

var _ TokenService = (*ScriptService)(nil)

// NewScriptService creates a ScriptService for the given script path.
func NewScriptService(scriptPath string) (*ScriptService, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("script path cannot be empty")
	}
	return &ScriptService{scriptPath: scriptPath}, nil
}

// Check implements TokenService.
func (s *ScriptService) Check(ctx context.Context) (bool, error) {
	err := s.run(ctx, "check")
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Login implements TokenService.
func (s *ScriptService) Login(ctx context.Context) error {
	if err := s.run(ctx, "login"); err != nil {
		return fmt.Errorf("token update script failed: %w", err)
	}
	return nil
}

func (s *ScriptService) run(ctx context.Context, subcommand string) error {
	if _, err := os.Stat(s.scriptPath); err != nil {
		return fmt.Errorf("token update script not found at %s: %w", s.scriptPath, err)
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", s.scriptPath, subcommand)
	// The script may prompt; leave stdin and stderr attached. Stdout is
	// discarded so helper chatter cannot leak into token output.
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// ScriptLogin is a LoginFlow that delegates to an external helper. The
// helper writes the credential itself, so the fresh record is picked up by
// re-reading the store afterwards.
type ScriptLogin struct {
	service TokenService
	store   credstore.Store
}

var _ LoginFlow = (*ScriptLogin)(nil)

// NewScriptLogin creates a ScriptLogin reading results back from store.
func NewScriptLogin(service TokenService, store credstore.Store) (*ScriptLogin, error) {
	if service == nil {
		return nil, fmt.Errorf("missing token service")
	}
	if store == nil {
		return nil, fmt.Errorf("missing credential store")
	}
	return &ScriptLogin{service: service, store: store}, nil
}

// Login implements LoginFlow.
func (l *ScriptLogin) Login(ctx context.Context) (credstore.Record, error) {
	if err := l.service.Login(ctx); err != nil {
		return credstore.Record{}, err
	}

	rec, err := l.store.Read(ctx)
	if errors.Is(err, credstore.ErrNotFound) {
		return credstore.Record{}, fmt.Errorf("token update script reported success but wrote no credential")
	}
	if err != nil {
		return credstore.Record{}, err
	}
	return rec, nil
}

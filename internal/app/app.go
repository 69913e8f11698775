package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
	"github.com/florianilch/storedsafe-tokenhandler/internal/lookup"
	"github.com/florianilch/storedsafe-tokenhandler/internal/storedsafe"
	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

// App wires the credential store, remote client, validator, login flow, and
// facade from configuration.
type App struct {
	cfg      *Config
	handler  *tokenhandler.Handler
	resolver *lookup.Resolver
}

// New creates a new App instance. No I/O is performed until the first
// operation.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credential store: %w", err)
	}

	client, err := storedsafe.New(cfg.Server.Address, storedsafe.TLSOptions{
		CABundle:   cfg.Server.CABundle,
		SkipVerify: cfg.Server.SkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	validator, err := tokenhandler.NewTokenValidator(cfg.Check.Mode, client, cfg.Check.RefreshBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	login, err := newLoginFlow(cfg, client, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create login flow: %w", err)
	}

	opts := []tokenhandler.HandlerOption{
		tokenhandler.WithMode(cfg.Mode),
		tokenhandler.WithLogger(slog.Default()),
	}
	// The advisory lock lives next to the rc file; other storage backends
	// bring their own cross-process serialization.
	if !cfg.Lock.Disabled && cfg.Storage.Type == StorageTypeFile {
		opts = append(opts, tokenhandler.WithLock(cfg.Storage.File+".lock", cfg.Lock.Timeout))
	}

	handler, err := tokenhandler.New(store, validator, login, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create token handler: %w", err)
	}

	resolver, err := lookup.New(handler, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	return &App{
		cfg:      cfg,
		handler:  handler,
		resolver: resolver,
	}, nil
}

// newLoginFlow builds the login flow for the configured method.
func newLoginFlow(cfg *Config, client *storedsafe.Client, store credstore.Store) (tokenhandler.LoginFlow, error) {
	if cfg.Storage.Type == StorageTypeEnv {
		// Read-only storage: a login could not be persisted, so tokens must
		// be provisioned externally.
		return readOnlyLogin{envKey: cfg.Storage.EnvKey}, nil
	}

	switch cfg.Login.Method {
	case LoginMethodInteractive:
		return tokenhandler.NewAPILogin(cfg.Server.Address, client,
			tokenhandler.NewPromptSource(cfg.Login.Username))
	case LoginMethodStatic:
		return tokenhandler.NewAPILogin(cfg.Server.Address, client, &tokenhandler.StaticSource{
			Username:   cfg.Login.Username,
			Passphrase: cfg.Login.Passphrase,
			OTP:        cfg.Login.OTP,
		})
	case LoginMethodScript:
		service, err := tokenhandler.NewScriptService(cfg.Login.Script)
		if err != nil {
			return nil, err
		}
		return tokenhandler.NewScriptLogin(service, store)
	default:
		return nil, fmt.Errorf("unsupported login method: %s", cfg.Login.Method)
	}
}

// readOnlyLogin refuses to log in on behalf of read-only storage.
type readOnlyLogin struct {
	envKey string
}

func (r readOnlyLogin) Login(ctx context.Context) (credstore.Record, error) {
	return credstore.Record{}, fmt.Errorf(
		"token in %s is invalid and env storage is read-only: provision a fresh token externally", r.envKey)
}

// EnsureValid returns a valid token, logging in if needed.
func (a *App) EnsureValid(ctx context.Context) (tokenhandler.Result, error) {
	return a.handler.EnsureValid(ctx)
}

// Check classifies the cached token without logging in.
func (a *App) Check(ctx context.Context) (tokenhandler.Status, error) {
	return a.handler.Check(ctx)
}

// Login forces a fresh login regardless of the cached token's state.
func (a *App) Login(ctx context.Context) (tokenhandler.Result, error) {
	return a.handler.Refresh(ctx, "")
}

// Lookup resolves an "<objectid>/<fieldname>" path to a field value.
func (a *App) Lookup(ctx context.Context, objectPath string) (string, error) {
	return a.resolver.Lookup(ctx, objectPath)
}

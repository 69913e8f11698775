package app

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// StorageType represents the different storage backends for the credential
// record.
type StorageType string

const (
	StorageTypeFile    StorageType = "file"
	StorageTypeEnv     StorageType = "env"
	StorageTypeKeyring StorageType = "keyring"
)

// LoginMethod represents how fresh tokens are obtained.
type LoginMethod string

const (
	LoginMethodInteractive LoginMethod = "interactive"
	LoginMethodStatic      LoginMethod = "static"
	LoginMethodScript      LoginMethod = "script"
)

// keyringService identifies this tool's entries in the OS keyring.
const keyringService = "storedsafe-tokenhandler"

// rcFileName is the classic per-user credential file name.
const rcFileName = ".storedsafe-client.rc"

// Default configuration values
const (
	DefaultConfigLogLevel      = "info"
	DefaultConfigLogFormat     = LogFormatText
	DefaultConfigMode          = tokenhandler.ModeStrict
	DefaultConfigCheckMode     = tokenhandler.CheckModeBoth
	DefaultConfigRefreshBuffer = 5 * time.Minute
	DefaultConfigStorage       = StorageTypeFile
	DefaultConfigLoginMethod   = LoginMethodInteractive
	DefaultConfigLockTimeout   = 30 * time.Second
)

// ServerConfig holds the remote server address and TLS settings.
type ServerConfig struct {
	Address string `json:"address" validate:"required,hostname_rfc1123|ip"`

	// CABundle is a path to a PEM bundle for servers with a private CA.
	CABundle string `json:"ca_bundle,omitempty" validate:"omitempty,file"`
	// SkipVerify disables certificate verification. Lab use only.
	SkipVerify bool `json:"skip_verify"`
}

// StorageConfig describes where the credential record is persisted.
type StorageConfig struct {
	Type StorageType `json:"type" validate:"required,oneof=file env keyring"`

	// Storage-specific settings (mutually exclusive based on Type)
	File        string `json:"file,omitempty"`         // For file storage: path to the rc file
	EnvKey      string `json:"env_key,omitempty"`      // For env storage: environment variable name (read-only)
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// CheckConfig selects how token liveness is established.
type CheckConfig struct {
	Mode tokenhandler.CheckMode `json:"mode" validate:"required,oneof=local remote both"`
	// RefreshBuffer treats tokens expiring within this window as invalid.
	RefreshBuffer time.Duration `json:"refresh_buffer"`
}

// LoginConfig describes how fresh tokens are obtained.
type LoginConfig struct {
	Method LoginMethod `json:"method" validate:"required,oneof=interactive static script"`

	// Username pre-fills the interactive prompt, or is required for static.
	Username string `json:"username,omitempty"`
	// Passphrase is only for static (headless) login. Prefer env injection
	// over the config file for this one.
	Passphrase string `json:"passphrase,omitempty"`
	OTP        string `json:"otp,omitempty"`

	// Script is the external token update helper, invoked as
	// "/bin/sh <script> login" when no valid token is found.
	Script string `json:"script,omitempty"`
}

// LockConfig bounds the cross-process lock around the credential file.
type LockConfig struct {
	Disabled bool `json:"disabled"`
	// Timeout for acquiring the lock; exceeding it fails the operation
	// rather than hanging. Zero waits indefinitely.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	LogLevel  string    `json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat LogFormat `json:"log_format" validate:"oneof=text json"`

	// Mode is the policy when the server is unreachable: strict fails,
	// lenient serves the cached token with a warning.
	Mode tokenhandler.Mode `json:"mode" validate:"oneof=strict lenient"`

	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Check   CheckConfig   `json:"check"`
	Login   LoginConfig   `json:"login"`
	Lock    LockConfig    `json:"lock"`
}

// NewStore creates a credential store from the storage configuration.
func (c *Config) NewStore() (credstore.Store, error) {
	switch c.Storage.Type {
	case StorageTypeFile:
		return credstore.NewFileStore(c.Storage.File)
	case StorageTypeEnv:
		return credstore.NewEnvStore(c.Server.Address, c.Storage.EnvKey)
	case StorageTypeKeyring:
		return credstore.NewKeyringStore(keyringService, c.Storage.KeyringUser)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogLevel == "" {
		c.LogLevel = DefaultConfigLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.Mode == "" {
		c.Mode = DefaultConfigMode
	}
	if c.Check.Mode == "" {
		c.Check.Mode = DefaultConfigCheckMode
	}
	if c.Check.RefreshBuffer == 0 {
		c.Check.RefreshBuffer = DefaultConfigRefreshBuffer
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorage
	}
	if c.Login.Method == "" {
		// A configured update script implies the script flow; this keeps
		// the original STOREDSAFE_TOKEN_UPDATE_SCRIPT contract working
		// without further configuration.
		if c.Login.Script != "" {
			c.Login.Method = LoginMethodScript
		} else {
			c.Login.Method = DefaultConfigLoginMethod
		}
	}
	if c.Lock.Timeout == 0 {
		c.Lock.Timeout = DefaultConfigLockTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(home, rcFileName)
		}
	case StorageTypeEnv:
		if c.Storage.EnvKey == "" {
			c.Storage.EnvKey = credstore.TokenEnvVar
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	}

	return nil
}

// Validate validates the configuration using struct tags and cross-field
// rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Login.Method {
	case LoginMethodStatic:
		if c.Login.Username == "" || c.Login.Passphrase == "" {
			return errors.New("static login requires login.username and login.passphrase")
		}
	case LoginMethodScript:
		if c.Login.Script == "" {
			return errors.New("script login requires login.script")
		}
		// The script protocol persists through the rc file itself
		if c.Storage.Type != StorageTypeFile {
			return errors.New("script login requires file storage (the script writes the rc file)")
		}
	}

	switch c.Storage.Type {
	case StorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case StorageTypeEnv:
		if c.Storage.EnvKey == "" {
			return errors.New("env_key required for env storage")
		}
	case StorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	if c.Server.SkipVerify && c.Server.CABundle != "" {
		return errors.New("server.skip_verify and server.ca_bundle are mutually exclusive")
	}

	return nil
}

package app

import (
	"strings"
	"testing"

	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	cfg.Server.Address = "safe.example.com"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := validConfig(t)

	if cfg.Mode != tokenhandler.ModeStrict {
		t.Errorf("mode = %q, want strict", cfg.Mode)
	}
	if cfg.Check.Mode != tokenhandler.CheckModeBoth {
		t.Errorf("check mode = %q, want both", cfg.Check.Mode)
	}
	if cfg.Storage.Type != StorageTypeFile {
		t.Errorf("storage = %q, want file", cfg.Storage.Type)
	}
	if !strings.HasSuffix(cfg.Storage.File, ".storedsafe-client.rc") {
		t.Errorf("rc path = %q, want ~/.storedsafe-client.rc", cfg.Storage.File)
	}
	if cfg.Login.Method != LoginMethodInteractive {
		t.Errorf("login method = %q, want interactive", cfg.Login.Method)
	}
	if cfg.Lock.Timeout == 0 {
		t.Error("lock timeout default missing")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config with server set should validate: %v", err)
	}
}

func TestScriptImpliesScriptMethod(t *testing.T) {
	cfg := &Config{}
	cfg.Login.Script = "/usr/local/bin/tokenhandler.sh"
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("ApplyDefaults: %v", err)
	}
	if cfg.Login.Method != LoginMethodScript {
		t.Errorf("login method = %q, want script when a script is configured", cfg.Login.Method)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "missing server address",
			mutate: func(c *Config) { c.Server.Address = "" },
		},
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "hopeful" },
		},
		{
			name:   "unknown check mode",
			mutate: func(c *Config) { c.Check.Mode = "sometimes" },
		},
		{
			name:   "static login without secrets",
			mutate: func(c *Config) { c.Login.Method = LoginMethodStatic },
		},
		{
			name:   "script login without script",
			mutate: func(c *Config) { c.Login.Method = LoginMethodScript },
		},
		{
			name: "script login with keyring storage",
			mutate: func(c *Config) {
				c.Login.Method = LoginMethodScript
				c.Login.Script = "/bin/true"
				c.Storage.Type = StorageTypeKeyring
				c.Storage.KeyringUser = "alice"
			},
		},
		{
			name: "skip-verify with CA bundle",
			mutate: func(c *Config) {
				c.Server.SkipVerify = true
				c.Server.CABundle = "/dev/null"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestValidateStaticLogin(t *testing.T) {
	cfg := validConfig(t)
	cfg.Login.Method = LoginMethodStatic
	cfg.Login.Username = "automation"
	cfg.Login.Passphrase = "hunter2"

	if err := cfg.Validate(); err != nil {
		t.Errorf("static login with secrets should validate: %v", err)
	}
}

func TestNewStoreEnv(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Type = StorageTypeEnv
	cfg.Storage.EnvKey = "STOREDSAFE_TOKEN"

	store, err := cfg.NewStore()
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store == nil {
		t.Fatal("nil store")
	}
}

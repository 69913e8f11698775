package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/florianilch/storedsafe-tokenhandler/internal/app"
	"github.com/florianilch/storedsafe-tokenhandler/internal/tokenhandler"
)

func environ(vars ...string) func() []string {
	return func() []string { return vars }
}

func TestLoadConfigFromEnv(t *testing.T) {
	cfg, err := loadConfig("", nil, environ(
		"STOREDSAFE_SERVER__ADDRESS=safe.example.com",
		"STOREDSAFE_MODE=lenient",
		"STOREDSAFE_CHECK__MODE=local",
	))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Server.Address != "safe.example.com" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Mode != tokenhandler.ModeLenient {
		t.Errorf("mode = %q, want lenient", cfg.Mode)
	}
	if cfg.Check.Mode != tokenhandler.CheckModeLocal {
		t.Errorf("check mode = %q, want local", cfg.Check.Mode)
	}
}

func TestLoadConfigLegacyEnvAliases(t *testing.T) {
	cfg, err := loadConfig("", nil, environ(
		"STOREDSAFE_SERVER=safe.example.com",
		"STOREDSAFE_SKIP_VERIFY=1",
		"STOREDSAFE_TOKEN_UPDATE_SCRIPT=/usr/local/bin/tokenhandler.sh",
	))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Server.Address != "safe.example.com" {
		t.Errorf("legacy STOREDSAFE_SERVER not mapped: address = %q", cfg.Server.Address)
	}
	if !cfg.Server.SkipVerify {
		t.Error("legacy STOREDSAFE_SKIP_VERIFY=1 not mapped")
	}
	if cfg.Login.Script != "/usr/local/bin/tokenhandler.sh" {
		t.Errorf("legacy script variable not mapped: %q", cfg.Login.Script)
	}
	if cfg.Login.Method != app.LoginMethodScript {
		t.Errorf("login method = %q, want script implied by script variable", cfg.Login.Method)
	}
}

func TestLoadConfigIgnoresTokenVariable(t *testing.T) {
	// The session token is a credential for the env store, not configuration
	_, err := loadConfig("", nil, environ(
		"STOREDSAFE_SERVER=safe.example.com",
		"STOREDSAFE_TOKEN=abc123",
	))
	if err != nil {
		t.Fatalf("loadConfig must skip STOREDSAFE_TOKEN: %v", err)
	}
}

func TestLoadConfigFilePlusEnvPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "storedsafe.toml")
	content := "mode = \"strict\"\n\n[server]\naddress = \"old.example.com\"\n\n[check]\nrefresh_buffer = \"10m\"\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := loadConfig(configPath, nil, environ(
		"STOREDSAFE_SERVER__ADDRESS=new.example.com",
	))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	// Env overrides file
	if cfg.Server.Address != "new.example.com" {
		t.Errorf("address = %q, env should override the file", cfg.Server.Address)
	}
	// File values without overrides survive
	if cfg.Mode != tokenhandler.ModeStrict {
		t.Errorf("mode = %q, want strict from file", cfg.Mode)
	}
	if cfg.Check.RefreshBuffer.Minutes() != 10 {
		t.Errorf("refresh buffer = %s, want 10m from file", cfg.Check.RefreshBuffer)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	// No server address anywhere
	if _, err := loadConfig("", nil, environ()); err == nil {
		t.Error("expected validation error for missing server address")
	}
}

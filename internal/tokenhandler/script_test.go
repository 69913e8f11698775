package tokenhandler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenhandler.sh")
	if err := os.WriteFile(path, []byte(content), 0700); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func TestScriptServiceCheck(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		want    bool
		wantErr bool
	}{
		{
			name:   "exit 0 is valid",
			script: "#!/bin/sh\n[ \"$1\" = check ] && exit 0\nexit 3\n",
			want:   true,
		},
		{
			name:   "exit 1 is invalid",
			script: "#!/bin/sh\nexit 1\n",
			want:   false,
		},
		{
			name:    "other exit codes are helper failures",
			script:  "#!/bin/sh\nexit 3\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewScriptService(writeScript(t, tt.script))
			if err != nil {
				t.Fatalf("NewScriptService: %v", err)
			}

			got, err := service.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScriptServiceMissingScript(t *testing.T) {
	service, err := NewScriptService(filepath.Join(t.TempDir(), "nope.sh"))
	if err != nil {
		t.Fatalf("NewScriptService: %v", err)
	}

	if _, err := service.Check(context.Background()); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestScriptLogin(t *testing.T) {
	rcPath := filepath.Join(t.TempDir(), ".storedsafe-client.rc")
	store, err := credstore.NewFileStore(rcPath)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	// The helper writes the rc file itself, like the real tokenhandler script
	script := fmt.Sprintf("#!/bin/sh\n[ \"$1\" = login ] || exit 3\numask 077\nprintf 'mysite:safe.example.com\\ntoken:fromscript\\n' > %s\nexit 0\n", rcPath)
	service, err := NewScriptService(writeScript(t, script))
	if err != nil {
		t.Fatalf("NewScriptService: %v", err)
	}

	login, err := NewScriptLogin(service, store)
	if err != nil {
		t.Fatalf("NewScriptLogin: %v", err)
	}

	rec, err := login.Login(context.Background())
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Token != "fromscript" || rec.Server != "safe.example.com" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestScriptLoginNoCredentialWritten(t *testing.T) {
	store, err := credstore.NewFileStore(filepath.Join(t.TempDir(), ".storedsafe-client.rc"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	service, err := NewScriptService(writeScript(t, "#!/bin/sh\nexit 0\n"))
	if err != nil {
		t.Fatalf("NewScriptService: %v", err)
	}

	login, err := NewScriptLogin(service, store)
	if err != nil {
		t.Fatalf("NewScriptLogin: %v", err)
	}

	_, err = login.Login(context.Background())
	if err == nil || errors.Is(err, credstore.ErrNotFound) {
		t.Errorf("expected descriptive error, got %v", err)
	}
}

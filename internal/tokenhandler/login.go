package tokenhandler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/florianilch/storedsafe-tokenhandler/internal/credstore"
	"github.com/florianilch/storedsafe-tokenhandler/internal/storedsafe"
)

// CredentialSource supplies the secrets for a login. Implementations cover
// interactive terminals and headless deployments.
type CredentialSource interface {
	Credentials(ctx context.Context) (storedsafe.LoginRequest, error)
}

// Authenticator performs the remote login call. Implemented by
// *storedsafe.Client.
type Authenticator interface {
	Login(ctx context.Context, req storedsafe.LoginRequest) (storedsafe.Session, error)
}

// LoginFlow obtains a fresh credential record. Implementations must surface
// *storedsafe.AuthError on rejected secrets and *storedsafe.TransportError on
// connectivity failure; neither is retried here.
type LoginFlow interface {
	Login(ctx context.Context) (credstore.Record, error)
}

// StaticSource returns pre-configured secrets, for headless token exchange.
type StaticSource struct {
	Username   string
	Passphrase string
	OTP        string
}

var _ CredentialSource = (*StaticSource)(nil)

// Credentials implements CredentialSource.
func (s *StaticSource) Credentials(ctx context.Context) (storedsafe.LoginRequest, error) {
	if err := ctx.Err(); err != nil {
		return storedsafe.LoginRequest{}, err
	}
	if s.Username == "" || s.Passphrase == "" {
		return storedsafe.LoginRequest{}, fmt.Errorf("static login requires username and passphrase")
	}
	return storedsafe.LoginRequest{
		Username:   s.Username,
		Passphrase: s.Passphrase,
		OTP:        s.OTP,
	}, nil
}

// PromptSource reads secrets interactively from a terminal. The passphrase
// is read with echo disabled.
type PromptSource struct {
	// Username skips the username prompt when non-empty.
	Username string

	In  *os.File
	Out io.Writer
}

var _ CredentialSource = (*PromptSource)(nil)

// NewPromptSource creates a PromptSource on stdin/stderr. Prompts go to
// stderr so stdout stays clean for token output.
func NewPromptSource(username string) *PromptSource {
	return &PromptSource{
		Username: username,
		In:       os.Stdin,
		Out:      os.Stderr,
	}
}

// Credentials implements CredentialSource.
func (p *PromptSource) Credentials(ctx context.Context) (storedsafe.LoginRequest, error) {
	if err := ctx.Err(); err != nil {
		return storedsafe.LoginRequest{}, err
	}
	if !term.IsTerminal(int(p.In.Fd())) {
		return storedsafe.LoginRequest{}, fmt.Errorf("interactive login requires a terminal (configure static or script login for headless use)")
	}

	reader := bufio.NewReader(p.In)

	req := storedsafe.LoginRequest{Username: p.Username}
	if req.Username == "" {
		fmt.Fprint(p.Out, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return storedsafe.LoginRequest{}, fmt.Errorf("reading username: %w", err)
		}
		req.Username = strings.TrimSpace(line)
	}

	fmt.Fprint(p.Out, "Passphrase: ")
	passphrase, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return storedsafe.LoginRequest{}, fmt.Errorf("reading passphrase: %w", err)
	}
	req.Passphrase = string(passphrase)

	fmt.Fprint(p.Out, "OTP (empty to skip): ")
	otp, err := reader.ReadString('\n')
	if err != nil {
		return storedsafe.LoginRequest{}, fmt.Errorf("reading otp: %w", err)
	}
	req.OTP = strings.TrimSpace(otp)

	return req, nil
}

// APILogin logs in natively against the StoredSafe API using secrets from a
// CredentialSource.
type APILogin struct {
	server string
	client Authenticator
	source CredentialSource

	now func() time.Time
}

var _ LoginFlow = (*APILogin)(nil)

// NewAPILogin creates an APILogin for the given server.
func NewAPILogin(server string, client Authenticator, source CredentialSource) (*APILogin, error) {
	if server == "" {
		return nil, fmt.Errorf("server cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("missing authenticator")
	}
	if source == nil {
		return nil, fmt.Errorf("missing credential source")
	}

	return &APILogin{
		server: server,
		client: client,
		source: source,
		now:    time.Now,
	}, nil
}

// Login implements LoginFlow.
func (a *APILogin) Login(ctx context.Context) (credstore.Record, error) {
	req, err := a.source.Credentials(ctx)
	if err != nil {
		return credstore.Record{}, fmt.Errorf("collecting login secrets: %w", err)
	}

	sess, err := a.client.Login(ctx, req)
	if err != nil {
		return credstore.Record{}, err
	}

	return credstore.Record{
		Server:    a.server,
		Token:     sess.Token,
		IssuedAt:  a.now().UTC(),
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

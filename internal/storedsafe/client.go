// Package storedsafe implements the small slice of the StoredSafe REST API
// this tool needs: token liveness checks, login, and single-object reads.
//
// The API lives under https://<server>/api/1.0. All requests and responses
// are JSON; call metadata is reported in a CALLINFO envelope and errors in
// an ERRORS array.
package storedsafe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
)

const (
	apiPath = "/api/1.0"

	// statusSuccess is the CALLINFO.status value for accepted calls.
	statusSuccess = "SUCCESS"

	// DownloadField is the reserved field name requesting raw file content
	// instead of a text field.
	DownloadField = "download"
)

// transportRetries is the number of additional attempts after a transport
// failure. Bounded at one so transient blips are absorbed without hammering
// an unreachable server.
const transportRetries = 1

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client (e.g., for tests or custom
// timeouts). TLS options passed to New are ignored when this is set.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// TLSOptions control server certificate verification.
type TLSOptions struct {
	// CABundle is a path to a PEM bundle used instead of the system roots.
	CABundle string
	// SkipVerify disables certificate verification entirely.
	SkipVerify bool
}

// Client is a minimal StoredSafe API client bound to one server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given server address. The address is a bare
// host name; the https scheme and API path are fixed.
func New(server string, tlsOpts TLSOptions, opts ...ClientOption) (*Client, error) {
	if server == "" {
		return nil, fmt.Errorf("server cannot be empty")
	}

	c := &Client{
		baseURL: "https://" + server + apiPath,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		tlsConfig, err := newTLSConfig(tlsOpts)
		if err != nil {
			return nil, err
		}
		c.httpClient = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}

	return c, nil
}

// newTLSConfig builds the TLS configuration from a CA bundle path and/or
// skip-verify flag. Both unset means system roots.
func newTLSConfig(opts TLSOptions) (*tls.Config, error) {
	if opts.SkipVerify {
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	if opts.CABundle == "" {
		return nil, nil
	}

	pem, err := os.ReadFile(opts.CABundle)
	if err != nil {
		return nil, fmt.Errorf("reading CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in CA bundle %s", opts.CABundle)
	}
	return &tls.Config{RootCAs: pool}, nil
}

// callInfo is the metadata envelope present in every API response.
type callInfo struct {
	Status string `json:"status"`
	Token  string `json:"token"`
	// Expires is the token lifetime in seconds, when the server reports one.
	Expires int64 `json:"expires"`
}

type apiResponse struct {
	CallInfo callInfo      `json:"CALLINFO"`
	Errors   []string      `json:"ERRORS"`
	Object   []objectEntry `json:"OBJECT"`
	FileData string        `json:"FILEDATA"`
}

// objectEntry is one decrypted object. Field values live in the crypted or
// public sections, with a handful of metadata fields at the top level.
type objectEntry struct {
	Crypted map[string]json.RawMessage `json:"crypted"`
	Public  map[string]json.RawMessage `json:"public"`
	Fields  map[string]json.RawMessage `json:"-"`
}

func (o *objectEntry) UnmarshalJSON(data []byte) error {
	type alias objectEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &a.Fields); err != nil {
		return err
	}
	delete(a.Fields, "crypted")
	delete(a.Fields, "public")
	*o = objectEntry(a)
	return nil
}

// field resolves a field value following the original lookup order:
// crypted section first, then public, then the top-level metadata.
func (o *objectEntry) field(name string) (string, bool) {
	for _, m := range []map[string]json.RawMessage{o.Crypted, o.Public, o.Fields} {
		if raw, ok := m[name]; ok {
			return rawToText(raw), true
		}
	}
	return "", false
}

// rawToText renders a JSON value as plain text: strings are unquoted,
// everything else keeps its JSON form.
func rawToText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// CheckAuth reports whether the token is still accepted by the server.
// A rejection is a negative result, not an error; only connectivity
// failures (after one retry with backoff) return a *TransportError.
func (c *Client) CheckAuth(ctx context.Context, token string) (bool, error) {
	body := map[string]string{"token": token}

	resp, err := c.post(ctx, "/auth/check", body)
	if err != nil {
		return false, err
	}
	if resp.statusCode >= 400 {
		// Any rejection of the token, regardless of status code
		return false, nil
	}
	return resp.payload.CallInfo.Status == statusSuccess, nil
}

// LoginRequest carries the secrets for a username/passphrase login.
type LoginRequest struct {
	Username   string
	Passphrase string
	OTP        string
}

// Session is the outcome of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Login authenticates against the server and returns the granted session
// token. Rejected secrets surface as *AuthError and are never retried here.
func (c *Client) Login(ctx context.Context, req LoginRequest) (Session, error) {
	body := map[string]string{
		"username":   req.Username,
		"passphrase": req.Passphrase,
	}
	if req.OTP != "" {
		body["otp"] = req.OTP
		body["logintype"] = "totp"
	}

	resp, err := c.post(ctx, "/auth", body)
	if err != nil {
		return Session{}, err
	}
	if resp.statusCode >= 400 || resp.payload.CallInfo.Status != statusSuccess {
		return Session{}, &AuthError{
			StatusCode: resp.statusCode,
			Message:    strings.Join(resp.payload.Errors, "; "),
		}
	}
	if resp.payload.CallInfo.Token == "" {
		return Session{}, fmt.Errorf("server reported success but returned no token")
	}

	sess := Session{Token: resp.payload.CallInfo.Token}
	if resp.payload.CallInfo.Expires > 0 {
		sess.ExpiresAt = time.Now().Add(time.Duration(resp.payload.CallInfo.Expires) * time.Second)
	}
	return sess, nil
}

// GetField fetches one field of one object. The reserved field name
// "download" returns the decoded content of a file object instead of a text
// field. A rejected token surfaces as *AuthError so callers can re-login.
func (c *Client) GetField(ctx context.Context, token, objectID, field string) (string, error) {
	query := url.Values{
		"token":   {token},
		"decrypt": {"true"},
	}
	download := field == DownloadField
	if download {
		query.Set("filedata", "true")
	}

	resp, err := c.get(ctx, "/object/"+url.PathEscape(objectID), query)
	if err != nil {
		return "", err
	}
	switch {
	case resp.statusCode == http.StatusUnauthorized || resp.statusCode == http.StatusForbidden:
		return "", &AuthError{
			StatusCode: resp.statusCode,
			Message:    strings.Join(resp.payload.Errors, "; "),
		}
	case resp.statusCode >= 400:
		return "", fmt.Errorf("object request failed (HTTP %d): %s",
			resp.statusCode, strings.Join(resp.payload.Errors, "; "))
	}

	if download {
		if resp.payload.FileData == "" {
			return "", ErrNotFound
		}
		content, err := decodeFileData(resp.payload.FileData)
		if err != nil {
			return "", fmt.Errorf("decoding file content: %w", err)
		}
		return content, nil
	}

	if len(resp.payload.Object) == 0 {
		return "", ErrNotFound
	}
	value, ok := resp.payload.Object[0].field(field)
	if !ok {
		return "", ErrNotFound
	}
	return strings.TrimRightFunc(value, unicode.IsSpace), nil
}

// response pairs the decoded payload with the HTTP status so callers can
// separate auth rejections from protocol errors.
type response struct {
	statusCode int
	payload    apiResponse
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return response{}, err
	}
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (response, error) {
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	})
}

// do executes the request, retrying once with exponential backoff on
// transport failure. Server responses, including rejections, are never
// retried here.
func (c *Client) do(ctx context.Context, newRequest func() (*http.Request, error)) (response, error) {
	operation := func() (response, error) {
		req, err := newRequest()
		if err != nil {
			return response{}, backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return response{}, &TransportError{URL: c.baseURL, Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return response{}, &TransportError{URL: c.baseURL, Err: err}
		}

		if resp.StatusCode >= 500 {
			// Server-side failure, not a verdict on the token
			return response{}, &TransportError{
				URL: c.baseURL,
				Err: fmt.Errorf("server error (HTTP %d)", resp.StatusCode),
			}
		}

		var payload apiResponse
		if len(data) > 0 {
			// Rejections may carry non-JSON bodies; the status code is enough then
			_ = json.Unmarshal(data, &payload)
		}

		return response{statusCode: resp.StatusCode, payload: payload}, nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), transportRetries), ctx)
	return backoff.RetryWithData(operation, policy)
}

// decodeFileData decodes the base64 file content the server returns for
// download requests.
func decodeFileData(data string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	return b
}

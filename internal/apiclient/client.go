// Package apiclient talks to the Odyssey Café REST backend on behalf of the
// console. The auth calls take the token explicitly; everything else reads it
// from a TokenSource at request time.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-cafe/internal/shared"
)

const (
	opLogin    = "login"
	opValidate = "validate"
	opRefresh  = "refresh"
	opLogout   = "logout"
)

// TokenSource yields the bearer token current at call time. An empty string
// means no credential.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

// Token implements TokenSource.
func (f TokenSourceFunc) Token() string { return f() }

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	// Timeout bounds each auth call. Zero means 10s.
	Timeout time.Duration
}

// Client calls the auth endpoints under BaseURL.
type Client struct {
	base    *url.URL
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	Token     string            `json:"token"`
	User      *shared.Principal `json:"user"`
	Message   string            `json:"message"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// ValidateResponse is the payload of the validation endpoint.
type ValidateResponse struct {
	Valid bool              `json:"valid"`
	User  *shared.Principal `json:"user"`
}

// RefreshResponse is the payload of a successful refresh.
type RefreshResponse struct {
	Token     string            `json:"token"`
	User      *shared.Principal `json:"user"`
	ExpiresAt *time.Time        `json:"expiresAt,omitempty"`
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("apiclient: base url required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("apiclient: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("apiclient: unsupported scheme %q", base.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{base: base, http: httpClient, tokens: cfg.Tokens, timeout: timeout}, nil
}

// BaseURL returns the resolved base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, identifier, secret string) (LoginResponse, error) {
	body := map[string]string{"identifier": identifier, "secret": secret}
	var out LoginResponse
	if err := c.call(ctx, opLogin, http.MethodPost, "auth/login", "", body, &out); err != nil {
		return LoginResponse{}, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return LoginResponse{}, fmt.Errorf("apiclient: %s: %w: empty token", opLogin, ErrMalformedResponse)
	}
	return out, nil
}

// Validate checks token against the backend. A {valid:false} answer is not
// an error; callers inspect Valid.
func (c *Client) Validate(ctx context.Context, token string) (ValidateResponse, error) {
	var out ValidateResponse
	if err := c.call(ctx, opValidate, http.MethodGet, "auth/validate", token, nil, &out); err != nil {
		return ValidateResponse{}, err
	}
	return out, nil
}

// Refresh exchanges token for a new one.
func (c *Client) Refresh(ctx context.Context, token string) (RefreshResponse, error) {
	var out RefreshResponse
	if err := c.call(ctx, opRefresh, http.MethodPost, "auth/refresh", token, nil, &out); err != nil {
		return RefreshResponse{}, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return RefreshResponse{}, fmt.Errorf("apiclient: %s: %w: %w: empty token", opRefresh, shared.ErrTokenInvalid, ErrMalformedResponse)
	}
	return out, nil
}

// Logout notifies the backend that token is no longer in use.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.call(ctx, opLogout, http.MethodPost, "auth/logout", token, nil, nil)
}

// Do sends req with the current bearer token attached. Relative request URLs
// are resolved against the base URL.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.Clone(ctx)
	if !req.URL.IsAbs() {
		req.URL = c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(req.URL.Path, "/"), RawQuery: req.URL.RawQuery})
		req.Host = ""
	}
	if c.tokens != nil && req.Header.Get("Authorization") == "" {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError("do", err)
	}
	return resp, nil
}

// Transport wraps base so every request carries the token current at send
// time. Requests that already set Authorization are left untouched.
func (c *Client) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerTransport{base: base, tokens: c.tokens}
}

type bearerTransport struct {
	base   http.RoundTripper
	tokens TokenSource
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tokens == nil || req.Header.Get("Authorization") != "" {
		return t.base.RoundTrip(req)
	}
	token := t.tokens.Token()
	if token == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req)
}

func (c *Client) call(ctx context.Context, op, method, path, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var payload *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("apiclient: %s: encode: %w", op, err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(&url.URL{Path: path}).String(), payload)
	if err != nil {
		return fmt.Errorf("apiclient: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()
	body, err := readBody(resp.Body)
	if err != nil {
		return transportError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newHTTPError(op, resp, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		if out != nil {
			return fmt.Errorf("apiclient: %s: %w: empty body", op, malformedKind(op))
		}
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("apiclient: %s: %w: decode: %v", op, malformedKind(op), err)
	}
	return nil
}

// malformedKind classifies an unusable 2xx payload. For token calls it counts
// as a rejected token so the session fails closed.
func malformedKind(op string) error {
	switch op {
	case opValidate, opRefresh:
		return errors.Join(shared.ErrTokenInvalid, ErrMalformedResponse)
	default:
		return ErrMalformedResponse
	}
}

// Package client is a Go client for the storefront REST API. It keeps the
// caller's session alive: an expired access token is refreshed once and the
// request retried once; any other authentication failure logs the client out.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flicky/grocery-storefront/internal/dto"
)

type State int

const (
	Anonymous State = iota
	Authenticated
	AccessExpired
	Refreshing
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	case AccessExpired:
		return "access_expired"
	case Refreshing:
		return "refreshing"
	case LoggedOut:
		return "logged_out"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const codeTokenExpired = "token_expired"

var ErrLoggedOut = errors.New("client: logged out, login required")

// APIError is a non-2xx response envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	baseURL string
	http    *http.Client

	refreshMu sync.Mutex

	mu      sync.Mutex
	state   State
	access  string
	refresh string
}

// New returns an anonymous client. baseURL includes the API prefix,
// e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.access, c.refresh
}

func (c *Client) logout() {
	c.mu.Lock()
	c.state = LoggedOut
	c.access, c.refresh = "", ""
	c.mu.Unlock()
}

func (c *Client) Login(ctx context.Context, emailOrUsername, password string) error {
	var pair dto.TokenPair
	req := dto.LoginRequest{EmailOrUsername: emailOrUsername, Password: password}
	if _, err := c.send(ctx, http.MethodPost, "/auth/login", "", req, &pair); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = Authenticated
	c.access, c.refresh = pair.AccessToken, pair.RefreshToken
	c.mu.Unlock()
	return nil
}

// Refresh exchanges the stored refresh token for a new access token. A
// rejected refresh logs the client out.
func (c *Client) Refresh(ctx context.Context) error {
	_, refresh := c.tokens()
	if refresh == "" {
		c.logout()
		return ErrLoggedOut
	}
	c.setState(Refreshing)

	var resp dto.AccessTokenResponse
	_, err := c.send(ctx, http.MethodPost, "/auth/refresh", "", dto.RefreshRequest{RefreshToken: refresh}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			c.logout()
			return fmt.Errorf("%w: %v", ErrLoggedOut, err)
		}
		c.setState(AccessExpired)
		return err
	}

	c.mu.Lock()
	c.state = Authenticated
	c.access = resp.AccessToken
	c.mu.Unlock()
	return nil
}

// Logout revokes the session server side. Local tokens are dropped even
// when the call fails.
func (c *Client) Logout(ctx context.Context) error {
	access, _ := c.tokens()
	defer c.logout()
	if access == "" {
		return nil
	}
	_, err := c.send(ctx, http.MethodPost, "/auth/logout", access, nil, nil)
	return err
}

// Do sends an API request and decodes the envelope data into out, which may
// be nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if c.State() == LoggedOut {
		return ErrLoggedOut
	}

	access, _ := c.tokens()
	_, err := c.send(ctx, method, path, access, body, out)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}
	if access == "" {
		return err
	}
	if apiErr.Code != codeTokenExpired {
		c.logout()
		return fmt.Errorf("%w: %v", ErrLoggedOut, err)
	}

	c.setState(AccessExpired)
	if err := c.refreshOnce(ctx, access); err != nil {
		return err
	}

	access, _ = c.tokens()
	_, err = c.send(ctx, method, path, access, body, out)
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		c.logout()
		return fmt.Errorf("%w: %v", ErrLoggedOut, err)
	}
	return err
}

// refreshOnce refreshes unless a concurrent caller already replaced the
// expired token.
func (c *Client) refreshOnce(ctx context.Context, expired string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if current, _ := c.tokens(); current != expired && current != "" {
		c.setState(Authenticated)
		return nil
	}
	return c.Refresh(ctx)
}

func (c *Client) send(ctx context.Context, method, path, bearer string, body, out any) (*envelope, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &env, &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &env, fmt.Errorf("decode data: %w", err)
		}
	}
	return &env, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/weighdesk-tui/internal/session"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the largest response body the client reads.
	MaxResponseSize = 1 << 20

	// DefaultAuthRate is the sustained rate of login and refresh calls.
	DefaultAuthRate = rate.Limit(2)

	// DefaultAuthBurst is the burst allowance of login and refresh calls.
	DefaultAuthBurst = 5

	// TokenCookie is the cookie that carries the session token.
	TokenCookie = "token"

	// RequestIDHeader carries a per-request correlation ID.
	RequestIDHeader = "X-Request-ID"

	loginPath  = "/login"
	logoutPath = "/logout"
)

// UserAgent is sent with every request. Overridden at link time.
var UserAgent = "weighdesk/dev"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Client.
type ClientConfig struct {
	// BaseURL is the weighbridge service root, e.g. https://scale.example.com/api
	BaseURL string

	// Timeout for each request (default: 30s)
	Timeout time.Duration

	// TLSConfig overrides the default TLS settings (TLS 1.2 minimum)
	TLSConfig *tls.Config

	// AuthRate and AuthBurst throttle login and refresh calls
	AuthRate  rate.Limit
	AuthBurst int

	// Logger receives request logs. Nil means no logging.
	Logger *zap.Logger
}

// DefaultConfig returns the default client configuration for baseURL.
func DefaultConfig(baseURL string) *ClientConfig {
	return &ClientConfig{
		BaseURL:   baseURL,
		Timeout:   DefaultTimeout,
		AuthRate:  DefaultAuthRate,
		AuthBurst: DefaultAuthBurst,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the weighbridge service and holds the cookie jar that
// carries the session credential. It implements session.Authenticator.
//
// The Client is safe for concurrent use.
//
// Example:
//
//	client, err := transport.NewClient(transport.DefaultConfig("https://scale.example.com/api"))
//	if err != nil {
//	    return err
//	}
//	sess, err := client.Login(ctx, session.Credentials{Username: "ops", Password: pw})
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        *resettableJar
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a Client. The base URL must be absolute http or https.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, errors.New("transport: nil config")
	}

	base, err := ParseBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	authRate := config.AuthRate
	if authRate <= 0 {
		authRate = DefaultAuthRate
	}
	authBurst := config.AuthBurst
	if authBurst <= 0 {
		authBurst = DefaultAuthBurst
	}
	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	jar := newResettableJar()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			Jar:       jar,
		},
		jar:     jar,
		limiter: rate.NewLimiter(authRate, authBurst),
		log:     logger.Named("transport"),
	}, nil
}

// ParseBaseURL validates and normalizes a service base URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("transport: base URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: base URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("transport: base URL has no host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Authenticated reports whether the jar holds a session token.
func (c *Client) Authenticated() bool {
	return c.jar.find(c.baseURL, TokenCookie) != ""
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// Login exchanges credentials for a session. The token is taken from the
// response's token cookie, or from Data.token when no cookie was set. A
// previous session's cookies are not cleared first.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (session.Session, error) {
	const op = "login"
	if err := c.limiter.Wait(ctx); err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}

	body, err := json.Marshal(loginRequest{User: creds.Username, Password: creds.Password})
	if err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}

	resp, err := c.send(ctx, http.MethodPost, loginPath, body)
	if err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	return c.sessionFrom(op, resp)
}

// RefreshToken asks the service to extend the current session. It uses
// whatever credential the jar holds; with none the service answers 401.
func (c *Client) RefreshToken(ctx context.Context) (session.Session, error) {
	const op = "refresh"
	if err := c.limiter.Wait(ctx); err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}

	resp, err := c.send(ctx, http.MethodPatch, loginPath, nil)
	if err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	return c.sessionFrom(op, resp)
}

// Logout asks the service to end the session and clears the jar whatever
// the outcome. Failures are logged and never returned.
func (c *Client) Logout(ctx context.Context) {
	defer c.jar.Reset()

	resp, err := c.send(ctx, http.MethodPost, logoutPath, nil)
	if err != nil {
		c.log.Warn("logout request failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("logout rejected", zap.Int("status", resp.StatusCode))
	}
}

// Connection returns a handle for authenticated requests. It shares the
// client's jar, so it carries whatever session is current when used.
func (c *Client) Connection() *Connection {
	return &Connection{client: c}
}

// sessionFrom turns a login or refresh response into a Session.
func (c *Client) sessionFrom(op string, resp *http.Response) (session.Session, error) {
	body, err := readResponse(resp)
	if err != nil {
		return session.Session{}, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return session.Session{}, parseServiceError(resp.StatusCode, body)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return session.Session{}, &TransportError{Op: op, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if env == nil {
		return session.Session{}, &ProtocolError{Reason: "unexpected envelope"}
	}

	if env.Status != StatusOK {
		msg := env.metaMessage()
		if msg == "" {
			msg = "invalid credentials"
		}
		return session.Session{}, &ServiceError{Code: StatusUnauthorized, HTTPStatus: resp.StatusCode, Details: msg}
	}

	token, source := tokenCookie(resp), "cookie"
	if token == "" && env.Data != nil && env.Data.Token != "" {
		token, source = env.Data.Token, "body"
		c.jar.SetCookies(c.baseURL, []*http.Cookie{{
			Name:     TokenCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
		}})
	}
	if token == "" {
		return session.Session{}, &ProtocolError{Reason: "token not found"}
	}
	if env.Data == nil || env.Data.ExpiresAt.IsZero() {
		return session.Session{}, &ProtocolError{Reason: "expiration not found"}
	}

	sess := session.Session{Token: token, ExpiresAt: env.Data.ExpiresAt.UTC()}
	c.log.Debug("session issued",
		zap.String("op", op),
		zap.String("token_source", source),
		zap.String("token", session.Fingerprint(token)),
		zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// tokenCookie returns the token set by this response, if any.
func tokenCookie(resp *http.Response) string {
	for _, ck := range resp.Cookies() {
		if ck.Name == TokenCookie && ck.Value != "" {
			return ck.Value
		}
	}
	return ""
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// send issues a request relative to the base URL.
func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, body != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", req.Header.Get(RequestIDHeader)),
			zap.Error(err))
		return nil, err
	}
	// Never log headers or bodies: they carry credentials.
	c.log.Debug("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", req.Header.Get(RequestIDHeader)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
}

func (c *Client) resolve(path string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(path, "/")
	return u.String()
}

// readResponse reads the body up to MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

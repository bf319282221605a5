// Package gotrue provides a session.Store backed by a GoTrue-compatible
// auth REST API (the hosted auth service used by the documentation site).
package gotrue

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// maxResponseBodySize bounds any response read from the auth backend.
const maxResponseBodySize = 1 << 20

// Client talks to the auth backend. It implements session.Store.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	notifier   session.Notifier
}

// Option is a functional option for configuring Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the auth backend at baseURL, sending apiKey
// in the apikey header of every request.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid auth backend URL %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         user   `json:"user"`
}

// apiError covers both the legacy and the current GoTrue error bodies.
type apiError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
	Error            string `json:"error"`
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// GetSession validates token with the backend.
// Tokens that are malformed or past their exp claim are rejected without a call.
func (c *Client) GetSession(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, session.ErrNoSession
	}
	claims, err := parseClaims(token)
	if err != nil {
		return nil, session.ErrNoSession
	}
	if !claims.expiresAt.IsZero() && !time.Now().Before(claims.expiresAt) {
		return nil, session.ErrNoSession
	}

	resp, err := c.do(ctx, http.MethodGet, "/auth/v1/user", token, nil)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, session.ErrNoSession
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get user: unexpected status %d", resp.StatusCode)
	}

	var u user
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("get user: response has no id")
	}

	return &session.Session{
		ID:          claims.sessionID,
		IdentityID:  u.ID,
		Email:       u.Email,
		AccessToken: token,
		CreatedAt:   claims.issuedAt,
		ExpiresAt:   claims.expiresAt,
	}, nil
}

// SignInWithPassword exchanges credentials for a session. Rejections carry
// the backend's message verbatim.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body)
	if err != nil {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		msg := apiErr.text()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		kind := session.SignInBackendError
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusUnprocessableEntity {
			kind = session.SignInCredentialsInvalid
		}
		return nil, &session.SignInError{Kind: kind, Message: msg}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil || tr.AccessToken == "" {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "malformed response from authentication service", Err: err}
	}

	now := time.Now().UTC()
	sess := &session.Session{
		IdentityID:   tr.User.ID,
		Email:        tr.User.Email,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		CreatedAt:    now,
	}
	switch {
	case tr.ExpiresAt > 0:
		sess.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		sess.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if claims, err := parseClaims(tr.AccessToken); err == nil {
		sess.ID = claims.sessionID
		if sess.IdentityID == "" {
			sess.IdentityID = claims.subject
		}
		if sess.ExpiresAt.IsZero() {
			sess.ExpiresAt = claims.expiresAt
		}
	}
	if sess.IdentityID == "" {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "malformed response from authentication service"}
	}

	c.notifier.Publish(session.Event{Type: session.EventSignedIn, AccessToken: sess.AccessToken, IdentityID: sess.IdentityID})
	return sess, nil
}

// SignOut revokes the session. A token the backend no longer knows counts
// as signed out.
func (c *Client) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	resp, err := c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil)
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusUnauthorized, http.StatusNotFound:
	default:
		return fmt.Errorf("logout: unexpected status %d", resp.StatusCode)
	}

	evt := session.Event{Type: session.EventSignedOut, AccessToken: token}
	if claims, err := parseClaims(token); err == nil {
		evt.IdentityID = claims.subject
	}
	c.notifier.Publish(evt)
	return nil
}

// Subscribe registers fn for SIGNED_IN and SIGNED_OUT events.
func (c *Client) Subscribe(fn func(session.Event)) func() {
	return c.notifier.Subscribe(fn)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body []byte) (*http.Response, error) {
	target := c.baseURL.String() + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.logger.Debug("auth backend request failed", "method", method, "path", strings.SplitN(path, "?", 2)[0], "error", err)
		return nil, err
	}
	return resp, nil
}

type tokenClaims struct {
	subject   string
	sessionID string
	issuedAt  time.Time
	expiresAt time.Time
}

// parseClaims reads the access token's claims without verifying its
// signature. The backend remains the authority on validity.
func parseClaims(token string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, err
	}

	var out tokenClaims
	out.subject, _ = claims.GetSubject()
	if sid, ok := claims["session_id"].(string); ok {
		out.sessionID = sid
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.expiresAt = exp.UTC()
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.issuedAt = iat.UTC()
	}
	return out, nil
}

// Compile-time interface verification.
var _ session.Store = (*Client)(nil)

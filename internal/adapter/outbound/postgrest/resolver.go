// Package postgrest resolves roles from a PostgREST-style REST table,
// queried with the viewer's own token so row level security applies.
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
)

const maxResponseBodySize = 1 << 20

// Config names the role table.
type Config struct {
	URL      string
	APIKey   string
	Table    string
	IDColumn string
	RoleCol  string
}

// Resolver implements auth.RoleResolver over HTTP.
type Resolver struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
}

// New creates a resolver. Table and column names default to
// profiles(id, role).
func New(cfg Config, httpClient *http.Client) (*Resolver, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid role backend URL %q", cfg.URL)
	}
	if cfg.Table == "" {
		cfg.Table = "profiles"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.RoleCol == "" {
		cfg.RoleCol = "role"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{
		cfg:        cfg,
		endpoint:   u.String() + "/rest/v1/" + url.PathEscape(cfg.Table),
		httpClient: httpClient,
	}, nil
}

// GetRole fetches the single role row for identity.
func (r *Resolver) GetRole(ctx context.Context, identity auth.Identity) (auth.Role, error) {
	q := url.Values{}
	q.Set("select", r.cfg.RoleCol)
	q.Set(r.cfg.IDColumn, "eq."+identity.ID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	req.Header.Set("apikey", r.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	bearer := identity.AccessToken
	if bearer == "" {
		bearer = r.cfg.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var rows []map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(&rows); err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: fmt.Errorf("decode rows: %w", err)}
	}

	switch len(rows) {
	case 0:
		return "", auth.ErrRoleNotFound
	case 1:
	default:
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: auth.ErrMultipleRoleRecords}
	}

	raw, ok := rows[0][r.cfg.RoleCol].(string)
	if !ok {
		if rows[0][r.cfg.RoleCol] == nil {
			return "", auth.ErrRoleNotFound
		}
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: errors.New("role column is not a string")}
	}
	role, err := auth.ParseRole(raw)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	return role, nil
}

// Compile-time interface verification.
var _ auth.RoleResolver = (*Resolver)(nil)

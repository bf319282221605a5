// Package sqlrole resolves roles from a SQL table through database/sql.
// The sqlite, pgx and mysql drivers are registered by this package.
package sqlrole

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
)

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config selects the driver and the role table.
type Config struct {
	Driver   string
	DSN      string
	Table    string
	IDColumn string
	RoleCol  string
}

// Resolver implements auth.RoleResolver over a database/sql pool.
type Resolver struct {
	db    *sql.DB
	query string
}

// Open connects to the database and prepares the role query.
func Open(ctx context.Context, cfg Config) (*Resolver, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	r, err := New(db, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return r, nil
}

// New wraps an existing pool. Table and columns default to profiles(id, role).
func New(db *sql.DB, cfg Config) (*Resolver, error) {
	if cfg.Table == "" {
		cfg.Table = "profiles"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.RoleCol == "" {
		cfg.RoleCol = "role"
	}
	for _, ident := range []string{cfg.Table, cfg.IDColumn, cfg.RoleCol} {
		if !identifierPattern.MatchString(ident) {
			return nil, fmt.Errorf("invalid sql identifier %q", ident)
		}
	}

	placeholder := "?"
	if cfg.Driver == DriverPostgres {
		placeholder = "$1"
	}
	// LIMIT 2 is enough to tell "one" from "more than one".
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 2", cfg.RoleCol, cfg.Table, cfg.IDColumn, placeholder)
	return &Resolver{db: db, query: query}, nil
}

// GetRole returns the single role row for identity.
func (r *Resolver) GetRole(ctx context.Context, identity auth.Identity) (auth.Role, error) {
	rows, err := r.db.QueryContext(ctx, r.query, identity.ID)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	defer func() { _ = rows.Close() }()

	var values []sql.NullString
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}

	switch len(values) {
	case 0:
		return "", auth.ErrRoleNotFound
	case 1:
	default:
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: auth.ErrMultipleRoleRecords}
	}
	if !values[0].Valid {
		return "", auth.ErrRoleNotFound
	}

	role, err := auth.ParseRole(values[0].String)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	return role, nil
}

// Ping checks the connection, used by the health endpoint.
func (r *Resolver) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the pool.
func (r *Resolver) Close() error {
	if r.db == nil {
		return errors.New("resolver not open")
	}
	return r.db.Close()
}

// Compile-time interface verification.
var _ auth.RoleResolver = (*Resolver)(nil)

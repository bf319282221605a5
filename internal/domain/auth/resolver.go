package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrRoleNotFound is returned when no role record exists for an identity.
var ErrRoleNotFound = errors.New("no role record for identity")

// RoleLookupError wraps a backend or transport failure during role lookup.
// A lookup that yields more than one record is also reported this way.
type RoleLookupError struct {
	IdentityID string
	Err        error
}

func (e *RoleLookupError) Error() string {
	return fmt.Sprintf("role lookup for %s failed: %v", e.IdentityID, e.Err)
}

func (e *RoleLookupError) Unwrap() error {
	return e.Err
}

// ErrMultipleRoleRecords is wrapped in a RoleLookupError when the role table
// holds more than one row for the identity.
var ErrMultipleRoleRecords = errors.New("more than one role record")

// RoleResolver looks up the single role record of an identity.
// Implementations: PostgREST table, SQL table, local accounts file.
type RoleResolver interface {
	// GetRole returns the identity's role.
	// Returns ErrRoleNotFound when there is no record, or a *RoleLookupError
	// when the backend fails or the record is ambiguous or unparseable.
	GetRole(ctx context.Context, identity Identity) (Role, error)
}

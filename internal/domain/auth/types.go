// Package auth contains the domain types for identities, roles and
// credential hashing used by the documentation gate.
package auth

import (
	"fmt"
	"strings"
)

// Role represents a coarse permission label attached to an identity.
type Role string

const (
	// RoleAdmin administers the platform.
	RoleAdmin Role = "admin"
	// RoleDeveloper builds against the platform and reads the internal docs.
	RoleDeveloper Role = "developer"
	// RoleModerator moderates community content.
	RoleModerator Role = "moderator"
	// RoleUser is a regular platform account.
	RoleUser Role = "user"
)

// Roles lists the closed set of known roles.
var Roles = []Role{RoleAdmin, RoleDeveloper, RoleModerator, RoleUser}

// IsValid returns true if the role is a member of the closed role set.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleModerator, RoleUser:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// ParseRole normalizes a stored role value and checks it against the closed set.
func ParseRole(value string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if !r.IsValid() {
		return "", fmt.Errorf("unknown role %q", value)
	}
	return r, nil
}

// Identity is the authenticated subject a role is resolved for.
type Identity struct {
	// ID is the backend's stable identity reference (user UUID).
	ID string
	// Email is the sign-in address, used for logs and audit only.
	Email string
	// AccessToken is the viewer's credential. Role backends that enforce
	// row level security forward it with the lookup.
	AccessToken string
}

// Package policy decides whether a resolved role may read gated content.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
)

// EvaluationContext contains everything a policy may look at.
type EvaluationContext struct {
	// Role is the viewer's resolved role.
	Role auth.Role
	// IdentityID is the authenticated identity.
	IdentityID string
	// Email is the viewer's sign-in address.
	Email string
	// Path is the requested site path (Redirect Intent path).
	Path string
}

// Engine evaluates an authenticated viewer against the deployment's access policy.
type Engine interface {
	// Allows reports whether the viewer may see the content.
	// An error means the policy could not be evaluated and must be treated as deny.
	Allows(ctx context.Context, evalCtx EvaluationContext) (bool, error)
}

// RoleSet allows exactly the configured roles.
type RoleSet struct {
	allowed map[auth.Role]struct{}
}

// NewRoleSet builds a RoleSet policy. Every role must be a member of the
// closed role set and at least one role is required.
func NewRoleSet(roles ...string) (*RoleSet, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("allowed role set is empty")
	}
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, r := range roles {
		role, err := auth.ParseRole(r)
		if err != nil {
			return nil, err
		}
		allowed[role] = struct{}{}
	}
	return &RoleSet{allowed: allowed}, nil
}

// Allows returns true if the role is in the set.
func (p *RoleSet) Allows(_ context.Context, evalCtx EvaluationContext) (bool, error) {
	_, ok := p.allowed[evalCtx.Role]
	return ok, nil
}

// Contains reports whether role is in the set.
func (p *RoleSet) Contains(role auth.Role) bool {
	_, ok := p.allowed[role]
	return ok
}

// String lists the allowed roles in stable order.
func (p *RoleSet) String() string {
	names := make([]string, 0, len(p.allowed))
	for r := range p.allowed {
		names = append(names, string(r))
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ",") + "}"
}

// Compile-time interface verification.
var _ Engine = (*RoleSet)(nil)

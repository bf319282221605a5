// Package gate implements the authoritative allow/deny decision for
// protected documentation paths.
package gate

import (
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// Outcome is the result of one gate evaluation.
type Outcome string

const (
	OutcomeAllow         Outcome = "ALLOW"
	OutcomeDenyNoSession Outcome = "DENY_NO_SESSION"
	OutcomeDenyWrongRole Outcome = "DENY_WRONG_ROLE"
	OutcomeDenyError     Outcome = "DENY_ERROR"
)

// Outcomes lists every outcome, used to pre-register metric labels.
var Outcomes = []Outcome{OutcomeAllow, OutcomeDenyNoSession, OutcomeDenyWrongRole, OutcomeDenyError}

func (o Outcome) String() string {
	return string(o)
}

// ErrorCodeInsufficientAccess is the login page error code for a wrong role.
const ErrorCodeInsufficientAccess = "insufficient_access"

// Request is the input of one evaluation.
type Request struct {
	// Path is the decoded request path.
	Path string
	// RawQuery is the query string without the leading '?'.
	RawQuery string
	// Token is the session access token, empty when the viewer has none.
	Token string
}

// Decision is the transient result of an evaluation. It is never persisted.
type Decision struct {
	Outcome Outcome

	// Bypassed is set when the path is public and no lookup happened.
	Bypassed bool

	// Intent is the sanitized redirect intent for the request.
	Intent string

	// Redirect is the login URL for any DENY outcome, empty on ALLOW.
	Redirect string

	// Session and Role are set on ALLOW (and Session on DENY_WRONG_ROLE).
	Session *session.Session
	Role    auth.Role

	// Cached reports whether the session view came from the view cache.
	Cached bool

	// Err is the underlying cause of a DENY, for logs only.
	Err error
}

// Allowed reports whether the viewer may see the content.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

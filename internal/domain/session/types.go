// Package session defines the viewer session and the Session Store port the
// gate and login flow depend on.
package session

import (
	"time"
)

// Session is evidence of a successful prior authentication.
// It is owned by the Session Store; the gate only holds a read-only copy.
type Session struct {
	// ID identifies the session inside its backend.
	ID string
	// IdentityID references the authenticated identity (user UUID).
	IdentityID string
	// Email is the address the viewer signed in with.
	Email string
	// AccessToken is the opaque credential carried by the session cookie.
	AccessToken string
	// RefreshToken is set by backends that support token refresh.
	RefreshToken string
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the session expires (UTC).
	ExpiresAt time.Time
}

// IsExpired checks if the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().UTC().After(s.ExpiresAt)
}

// TTL returns the remaining lifetime, or zero if expired.
func (s *Session) TTL() time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	d := time.Until(s.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}

// EventType identifies a session state change.
type EventType string

const (
	// EventSignedIn is emitted after a successful password sign-in.
	EventSignedIn EventType = "SIGNED_IN"
	// EventSignedOut is emitted after a sign-out for the session's token.
	EventSignedOut EventType = "SIGNED_OUT"
)

// Event is delivered to subscribers of a Session Store.
type Event struct {
	Type EventType
	// AccessToken identifies the affected session.
	AccessToken string
	// IdentityID is the affected identity, when known.
	IdentityID string
}

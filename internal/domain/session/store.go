package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSession is returned when the token does not map to a live session.
var ErrNoSession = errors.New("no session")

// SignInErrorKind separates rejected credentials from backend failures.
type SignInErrorKind string

const (
	// SignInCredentialsInvalid means the backend rejected the email/password.
	SignInCredentialsInvalid SignInErrorKind = "credentials"
	// SignInBackendError means the backend failed or answered unexpectedly.
	SignInBackendError SignInErrorKind = "backend"
)

// SignInError carries the backend's message verbatim so the login page can
// show it unchanged.
type SignInError struct {
	Kind    SignInErrorKind
	Message string
	Err     error
}

func (e *SignInError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sign-in %s error: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("sign-in %s error: %s", e.Kind, e.Message)
}

func (e *SignInError) Unwrap() error {
	return e.Err
}

// Store wraps the auth backend that owns sessions.
// Implementations: GoTrue REST client (remote), local accounts + memory.
type Store interface {
	// GetSession returns the live session for an access token.
	// Returns ErrNoSession if the token is unknown, revoked or expired.
	GetSession(ctx context.Context, token string) (*Session, error)

	// SignInWithPassword creates a session for the credentials.
	// Failures are reported as *SignInError.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignOut terminates the session for the token. Signing out an unknown
	// token is not an error.
	SignOut(ctx context.Context, token string) error

	// Subscribe registers fn for session state changes and returns a
	// function that removes the subscription.
	Subscribe(fn func(Event)) (unsubscribe func())
}

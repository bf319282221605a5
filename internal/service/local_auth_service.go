package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// MessageInvalidCredentials is shown for unknown accounts, disabled
// accounts and wrong passwords alike.
const MessageInvalidCredentials = "Invalid login credentials"

// DefaultSessionTTL is the lifetime of locally issued sessions.
const DefaultSessionTTL = 8 * time.Hour

// LocalAuthService is the local Session Store and Role Resolver: identities
// and role records come from the accounts file, sessions live in memory.
type LocalAuthService struct {
	session.Notifier

	accounts *state.FileAccountStore
	sessions *memory.MemorySessionStore
	ttl      time.Duration
	logger   *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewLocalAuthService creates a local auth backend. ttl <= 0 uses the
// default session lifetime.
func NewLocalAuthService(accounts *state.FileAccountStore, sessions *memory.MemorySessionStore, ttl time.Duration, logger *slog.Logger) *LocalAuthService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &LocalAuthService{
		accounts: accounts,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
	}
}

// GetSession returns the live session for token.
func (s *LocalAuthService) GetSession(ctx context.Context, token string) (*session.Session, error) {
	if token == "" {
		return nil, session.ErrNoSession
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.sessions.Get(ctx, token)
}

// SignInWithPassword verifies the credentials against the accounts file
// and issues a new session.
func (s *LocalAuthService) SignInWithPassword(ctx context.Context, email, password string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "sign-in cancelled", Err: err}
	}

	f, err := s.accounts.Load()
	if err != nil {
		s.logger.Error("failed to load accounts file", "error", err)
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}

	account := f.Find(strings.TrimSpace(email))
	if account == nil || account.Disabled {
		// Equalize timing with a real verification.
		_, _ = auth.VerifyPassword(password, s.timingHash())
		return nil, &session.SignInError{Kind: session.SignInCredentialsInvalid, Message: MessageInvalidCredentials}
	}

	ok, err := auth.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unusable", "account_id", account.ID, "error", err)
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}
	if !ok {
		return nil, &session.SignInError{Kind: session.SignInCredentialsInvalid, Message: MessageInvalidCredentials}
	}

	token, err := newAccessToken()
	if err != nil {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}

	now := time.Now().UTC()
	sess := &session.Session{
		ID:          uuid.New().String(),
		IdentityID:  account.ID,
		Email:       account.Email,
		AccessToken: token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, &session.SignInError{Kind: session.SignInBackendError, Message: "authentication service unavailable", Err: err}
	}

	s.Publish(session.Event{Type: session.EventSignedIn, AccessToken: token, IdentityID: account.ID})
	return sess, nil
}

// SignOut removes the session for token. Unknown tokens are not an error.
func (s *LocalAuthService) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	removed := s.sessions.Delete(ctx, token)
	evt := session.Event{Type: session.EventSignedOut, AccessToken: token}
	if removed != nil {
		evt.IdentityID = removed.IdentityID
	}
	s.Publish(evt)
	return nil
}

// GetRole returns the role record stored on the identity's account.
func (s *LocalAuthService) GetRole(ctx context.Context, identity auth.Identity) (auth.Role, error) {
	if err := ctx.Err(); err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	f, err := s.accounts.Load()
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	account := f.FindByID(identity.ID)
	if account == nil || account.Role == "" {
		return "", auth.ErrRoleNotFound
	}
	role, err := auth.ParseRole(account.Role)
	if err != nil {
		return "", &auth.RoleLookupError{IdentityID: identity.ID, Err: err}
	}
	return role, nil
}

// ActiveSessions returns the number of live local sessions.
func (s *LocalAuthService) ActiveSessions() int {
	return s.sessions.Size()
}

func (s *LocalAuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := auth.HashPassword("docgate-timing-equalizer")
		if err != nil {
			s.logger.Warn("failed to create timing hash", "error", err)
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// newAccessToken returns 32 random bytes, hex-encoded.
func newAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

var (
	_ session.Store     = (*LocalAuthService)(nil)
	_ auth.RoleResolver = (*LocalAuthService)(nil)
)

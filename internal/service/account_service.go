package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Sentinel-Gate/docgate/internal/adapter/outbound/state"
	"github.com/Sentinel-Gate/docgate/internal/domain/auth"
)

// ErrInvalidEmail is returned for addresses net/mail cannot parse.
var ErrInvalidEmail = errors.New("invalid email address")

// AccountService manages the local accounts file: identities, password
// hashes and their single role record. Used by the accounts CLI; the
// running gateway only reads the file.
type AccountService struct {
	store  *state.FileAccountStore
	logger *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(store *state.FileAccountStore, logger *slog.Logger) *AccountService {
	return &AccountService{store: store, logger: logger}
}

// CreateAccountInput holds the fields for a new local account.
type CreateAccountInput struct {
	Email    string
	Password string
	// Role is optional. An account without a role can sign in but is
	// always denied by the gate.
	Role string
}

// ListAccounts returns every account. Password hashes are cleared.
func (s *AccountService) ListAccounts(_ context.Context) ([]state.AccountEntry, error) {
	f, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	out := make([]state.AccountEntry, len(f.Accounts))
	copy(out, f.Accounts)
	for i := range out {
		out[i].PasswordHash = ""
	}
	return out, nil
}

// CreateAccount adds an account with an Argon2id password hash.
func (s *AccountService) CreateAccount(_ context.Context, input CreateAccountInput) (*state.AccountEntry, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if input.Role != "" {
		if _, err := auth.ParseRole(input.Role); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	entry := state.AccountEntry{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         strings.ToLower(strings.TrimSpace(input.Role)),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.Update(func(f *state.AccountsFile) error {
		return f.Add(entry)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("account created", "id", entry.ID, "email", entry.Email, "role", entry.Role)
	entry.PasswordHash = ""
	return &entry, nil
}

// RemoveAccount deletes the account with email.
func (s *AccountService) RemoveAccount(_ context.Context, email string) error {
	if err := s.store.Update(func(f *state.AccountsFile) error {
		return f.Remove(email)
	}); err != nil {
		return err
	}
	s.logger.Info("account removed", "email", email)
	return nil
}

// SetRole replaces the role record of the account. An empty role removes
// the record.
func (s *AccountService) SetRole(_ context.Context, email, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != "" {
		if _, err := auth.ParseRole(role); err != nil {
			return err
		}
	}
	if err := s.store.Update(func(f *state.AccountsFile) error {
		return f.SetRole(email, role)
	}); err != nil {
		return err
	}
	s.logger.Info("account role updated", "email", email, "role", role)
	return nil
}

// SetDisabled enables or disables sign-in for the account.
func (s *AccountService) SetDisabled(_ context.Context, email string, disabled bool) error {
	return s.store.Update(func(f *state.AccountsFile) error {
		a := f.Find(email)
		if a == nil {
			return state.ErrAccountNotFound
		}
		a.Disabled = disabled
		a.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return strings.ToLower(addr.Address), nil
}

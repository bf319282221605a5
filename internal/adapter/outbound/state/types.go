// Package state provides file-based persistence for local accounts.
//
// The accounts file holds the identities, password hashes and role records
// used by the local session backend. Writes are atomic, locked across
// processes and keep a backup of the previous version.
package state

import (
	"errors"
	"strings"
	"time"
)

// CurrentVersion is the accounts file schema version.
const CurrentVersion = "1"

// Errors returned by AccountsFile mutations.
var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// AccountsFile is the top-level structure persisted in the accounts file.
type AccountsFile struct {
	Version   string         `json:"version"`
	Accounts  []AccountEntry `json:"accounts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AccountEntry is one local identity with its role record.
type AccountEntry struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	// PasswordHash is an Argon2id PHC string.
	PasswordHash string `json:"password_hash"`
	// Role is the single role record for the identity. Empty means no record.
	Role      string    `json:"role,omitempty"`
	Disabled  bool      `json:"disabled,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Find returns the account with email (case-insensitive), or nil.
func (f *AccountsFile) Find(email string) *AccountEntry {
	for i := range f.Accounts {
		if strings.EqualFold(f.Accounts[i].Email, email) {
			return &f.Accounts[i]
		}
	}
	return nil
}

// FindByID returns the account with id, or nil.
func (f *AccountsFile) FindByID(id string) *AccountEntry {
	for i := range f.Accounts {
		if f.Accounts[i].ID == id {
			return &f.Accounts[i]
		}
	}
	return nil
}

// Add appends an account. Emails are unique.
func (f *AccountsFile) Add(entry AccountEntry) error {
	if f.Find(entry.Email) != nil {
		return ErrAccountExists
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	f.Accounts = append(f.Accounts, entry)
	return nil
}

// Remove deletes the account with email.
func (f *AccountsFile) Remove(email string) error {
	for i := range f.Accounts {
		if strings.EqualFold(f.Accounts[i].Email, email) {
			f.Accounts = append(f.Accounts[:i], f.Accounts[i+1:]...)
			return nil
		}
	}
	return ErrAccountNotFound
}

// SetRole replaces the role record of the account with email.
func (f *AccountsFile) SetRole(email, role string) error {
	a := f.Find(email)
	if a == nil {
		return ErrAccountNotFound
	}
	a.Role = role
	a.UpdatedAt = time.Now().UTC()
	return nil
}

package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"
)

// FileAccountStore reads and writes the accounts file.
// Writes go to path+".tmp" and are renamed into place under an in-process
// mutex and a cross-process flock on path+".lock".
type FileAccountStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileAccountStore creates a store for the given file path.
func NewFileAccountStore(path string, logger *slog.Logger) *FileAccountStore {
	return &FileAccountStore{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the accounts file.
// A missing file yields an empty DefaultState. Invalid JSON is an error.
// Permissions more open than 0600 are logged.
func (s *FileAccountStore) Load() (*AccountsFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("accounts file not found, starting empty", "path", s.path)
			return s.DefaultState(), nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 {
				s.logger.Warn("accounts file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var f AccountsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse accounts file: %w", err)
	}
	if f.Version != "" && f.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported accounts file version %q", f.Version)
	}
	return &f, nil
}

// Save writes the accounts file atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex and the flock on path+".lock"
//  2. Copy the current file to path+".bak"
//  3. Write indented JSON to path+".tmp" (0600) and fsync it
//  4. Rename path+".tmp" over path
func (s *FileAccountStore) Save(f *AccountsFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	return s.saveLocked(f)
}

// Update loads the file, applies fn and saves the result, all under the
// lock, so concurrent CLI invocations cannot lose each other's changes.
// Nothing is written if fn returns an error.
func (s *FileAccountStore) Update(fn func(*AccountsFile) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	f, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		return err
	}
	return s.saveLocked(f)
}

func (s *FileAccountStore) lock() (func(), error) {
	lockFile, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := flockLock(lockFile.Fd()); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("acquire file lock: %w", err)
	}
	return func() {
		_ = flockUnlock(lockFile.Fd())
		_ = lockFile.Close()
	}, nil
}

func (s *FileAccountStore) saveLocked(f *AccountsFile) error {
	f.UpdatedAt = time.Now().UTC()
	if f.Version == "" {
		f.Version = CurrentVersion
	}

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		if writeErr := os.WriteFile(s.path+".bak", currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on accounts file", "error", err)
	}

	s.logger.Debug("accounts saved", "path", s.path, "accounts", len(f.Accounts))
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it and renames it over
// the target path. On any error the temp file is removed.
func (s *FileAccountStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to accounts file: %w", err)
	}
	return nil
}

// DefaultState returns an empty accounts file.
func (s *FileAccountStore) DefaultState() *AccountsFile {
	now := time.Now().UTC()
	return &AccountsFile{
		Version:   CurrentVersion,
		Accounts:  []AccountEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Exists returns true if the accounts file exists on disk.
func (s *FileAccountStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileAccountStore) Path() string {
	return s.path
}

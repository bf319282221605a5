// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

// DefaultCleanupInterval is how often expired sessions are removed.
const DefaultCleanupInterval = 1 * time.Minute

// MemorySessionStore keeps locally issued sessions keyed by access token.
// Thread-safe. A background goroutine removes expired sessions.
type MemorySessionStore struct {
	sessions        map[string]*session.Session
	mu              sync.RWMutex
	stopChan        chan struct{}
	wg              sync.WaitGroup
	cleanupInterval time.Duration
	once            sync.Once
	onExpire        func(*session.Session)
}

// NewSessionStore creates a session store with the default cleanup interval.
func NewSessionStore() *MemorySessionStore {
	return NewSessionStoreWithConfig(DefaultCleanupInterval)
}

// NewSessionStoreWithConfig creates a session store with a custom cleanup interval.
func NewSessionStoreWithConfig(cleanupInterval time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions:        make(map[string]*session.Session),
		stopChan:        make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}
}

// OnExpire registers fn to be called for each session removed by cleanup.
// Must be called before StartCleanup.
func (s *MemorySessionStore) OnExpire(fn func(*session.Session)) {
	s.onExpire = fn
}

// StartCleanup starts the background cleanup goroutine.
// Call Stop() to stop it.
func (s *MemorySessionStore) StartCleanup(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.cleanup()
			}
		}
	}()
}

func (s *MemorySessionStore) cleanup() {
	s.mu.Lock()
	var expired []*session.Session
	for token, sess := range s.sessions {
		if sess.IsExpired() {
			delete(s.sessions, token)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		slog.Debug("cleaned expired sessions", "count", len(expired))
	}
	if s.onExpire != nil {
		for _, sess := range expired {
			s.onExpire(sess)
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to exit.
// Safe to call multiple times.
func (s *MemorySessionStore) Stop() {
	s.once.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// Create stores a new session under its access token.
func (s *MemorySessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.AccessToken] = copySession(sess)
	return nil
}

// Get returns the session for token.
// Returns session.ErrNoSession if it doesn't exist or is expired.
// Expired sessions are left for the cleanup goroutine.
func (s *MemorySessionStore) Get(_ context.Context, token string) (*session.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok || sess.IsExpired() {
		return nil, session.ErrNoSession
	}
	return copySession(sess), nil
}

// Delete removes the session for token and returns it, or nil if absent.
func (s *MemorySessionStore) Delete(_ context.Context, token string) *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil
	}
	delete(s.sessions, token)
	return sess
}

// DeleteIdentity removes every session of an identity and returns how many were removed.
func (s *MemorySessionStore) DeleteIdentity(_ context.Context, identityID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for token, sess := range s.sessions {
		if sess.IdentityID == identityID {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// Size returns the number of sessions currently stored.
func (s *MemorySessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func copySession(sess *session.Session) *session.Session {
	c := *sess
	return &c
}

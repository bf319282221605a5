package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/docgate/internal/domain/session"
)

func testSession(token, identityID string, ttl time.Duration) *session.Session {
	now := time.Now().UTC()
	return &session.Session{
		ID:          "sess-" + token,
		IdentityID:  identityID,
		Email:       identityID + "@example.com",
		AccessToken: token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestSessionStore_CreateGetDelete(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	if err := store.Create(ctx, testSession("tok", "u1", time.Hour)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.IdentityID != "u1" {
		t.Errorf("IdentityID = %q, want u1", got.IdentityID)
	}

	// Returned sessions are copies.
	got.IdentityID = "mutated"
	again, _ := store.Get(ctx, "tok")
	if again.IdentityID != "u1" {
		t.Error("mutation of returned session leaked into the store")
	}

	if deleted := store.Delete(ctx, "tok"); deleted == nil || deleted.IdentityID != "u1" {
		t.Errorf("Delete() = %v", deleted)
	}
	if deleted := store.Delete(ctx, "tok"); deleted != nil {
		t.Error("second Delete() should return nil")
	}
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Get() after delete err = %v, want ErrNoSession", err)
	}
}

func TestSessionStore_ExpiredIsAbsent(t *testing.T) {
	store := NewSessionStore()
	_ = store.Create(context.Background(), testSession("old", "u1", -time.Second))

	if _, err := store.Get(context.Background(), "old"); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("Get(expired) err = %v, want ErrNoSession", err)
	}
	if store.Size() != 1 {
		t.Error("Get must leave expired sessions for cleanup")
	}
}

func TestSessionStore_DeleteIdentity(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()
	_ = store.Create(ctx, testSession("a", "u1", time.Hour))
	_ = store.Create(ctx, testSession("b", "u1", time.Hour))
	_ = store.Create(ctx, testSession("c", "u2", time.Hour))

	if n := store.DeleteIdentity(ctx, "u1"); n != 2 {
		t.Errorf("DeleteIdentity() = %d, want 2", n)
	}
	if store.Size() != 1 {
		t.Errorf("Size() = %d, want 1", store.Size())
	}
}

func TestSessionStoreCleanup(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewSessionStoreWithConfig(10 * time.Millisecond)
	var expired atomic.Int32
	store.OnExpire(func(*session.Session) { expired.Add(1) })

	ctx := context.Background()
	_ = store.Create(ctx, testSession("short", "u1", 20*time.Millisecond))
	_ = store.Create(ctx, testSession("long", "u2", time.Hour))

	store.StartCleanup(ctx)
	defer store.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.Size() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", store.Size())
	}
	if expired.Load() != 1 {
		t.Errorf("OnExpire calls = %d, want 1", expired.Load())
	}
	if _, err := store.Get(ctx, "long"); err != nil {
		t.Errorf("long-lived session removed: %v", err)
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok := string(rune('a' + i))
			_ = store.Create(ctx, testSession(tok, "u", time.Hour))
			_, _ = store.Get(ctx, tok)
			store.Delete(ctx, tok)
		}(i)
	}
	wg.Wait()

	if store.Size() != 0 {
		t.Errorf("Size() = %d, want 0", store.Size())
	}
}

func TestSessionStoreStopMultipleCalls(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := NewSessionStoreWithConfig(time.Hour)
	store.StartCleanup(context.Background())
	store.Stop()
	store.Stop()
}

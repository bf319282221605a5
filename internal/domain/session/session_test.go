package session

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSession_IsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{name: "not expired when ExpiresAt is in future", expiresAt: time.Now().Add(time.Hour), want: false},
		{name: "expired when ExpiresAt is in past", expiresAt: time.Now().Add(-time.Hour), want: true},
		{name: "zero expiry never expires", expiresAt: time.Time{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{ExpiresAt: tt.expiresAt}
			if got := s.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_TTL(t *testing.T) {
	s := &Session{ExpiresAt: time.Now().Add(-time.Minute)}
	if got := s.TTL(); got != 0 {
		t.Errorf("TTL() on expired = %v, want 0", got)
	}

	s.ExpiresAt = time.Now().Add(10 * time.Minute)
	if got := s.TTL(); got <= 9*time.Minute || got > 10*time.Minute {
		t.Errorf("TTL() = %v, want ~10m", got)
	}
}

func TestSignInError(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&SignInError{Kind: SignInBackendError, Message: "auth backend unavailable", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("SignInError should unwrap to its cause")
	}
	var signInErr *SignInError
	if !errors.As(err, &signInErr) {
		t.Fatal("errors.As(*SignInError) = false")
	}
	if signInErr.Message != "auth backend unavailable" {
		t.Errorf("Message = %q", signInErr.Message)
	}
}

func TestNotifier_SubscribePublishUnsubscribe(t *testing.T) {
	var n Notifier
	var first, second atomic.Int32

	unsubFirst := n.Subscribe(func(evt Event) {
		if evt.Type == EventSignedOut {
			first.Add(1)
		}
	})
	n.Subscribe(func(Event) { second.Add(1) })

	n.Publish(Event{Type: EventSignedOut, AccessToken: "tok"})
	unsubFirst()
	unsubFirst() // second call is a no-op
	n.Publish(Event{Type: EventSignedOut, AccessToken: "tok"})

	if got := first.Load(); got != 1 {
		t.Errorf("first subscriber calls = %d, want 1", got)
	}
	if got := second.Load(); got != 2 {
		t.Errorf("second subscriber calls = %d, want 2", got)
	}
}

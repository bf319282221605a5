// Package audit contains domain types for audit logging.
package audit

import (
	"time"
)

// Decision constants for audit records.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Event types recorded by the gateway.
const (
	// EventTypeGate is one Auth Gate evaluation for a protected request.
	EventTypeGate = "gate.evaluate"

	EventTypeLogin       = "access.login"
	EventTypeLoginFailed = "access.login_failed"
	EventTypeLogout      = "access.logout"
)

// AuditRecord represents a single auditable access event.
// It never carries credentials: no password, no token.
type AuditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	RequestID string    `json:"request_id,omitempty"`

	// SessionID is the session's opaque ID, never its access token.
	SessionID  string `json:"session_id,omitempty"`
	IdentityID string `json:"identity_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`

	Path string `json:"path,omitempty"`
	// Decision is "allow" or "deny".
	Decision string `json:"decision"`
	// Outcome is the detailed gate outcome or login result.
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`

	SourceIP      string `json:"source_ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	LatencyMicros int64  `json:"latency_us"`
}

// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// Rate is the number of allowed events in the period.
	Rate int

	// Burst is the maximum number of events that can occur at once.
	Burst int

	// Period is the time window for the rate limit.
	Period time.Duration
}

// PerMinute returns a config allowing rate events per minute with an equal burst.
func PerMinute(rate int) RateLimitConfig {
	return RateLimitConfig{Rate: rate, Burst: rate, Period: time.Minute}
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed bool

	// Remaining is the number of events left before the limit is hit.
	Remaining int

	// RetryAfter is only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAfter is the duration until the bucket is full again.
	ResetAfter time.Duration
}

// KeyType identifies the type of rate limit key.
type KeyType string

const (
	// KeyTypeIP limits all traffic from one client address.
	KeyTypeIP KeyType = "ip"

	// KeyTypeLogin limits sign-in submissions from one client address.
	KeyTypeLogin KeyType = "login"
)

const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
//
//	FormatKey(KeyTypeLogin, "192.168.1.1") -> "ratelimit:login:192.168.1.1"
func FormatKey(keyType KeyType, value string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, keyType, value)
}

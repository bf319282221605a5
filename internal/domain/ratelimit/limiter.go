package ratelimit

import "context"

// RateLimiter decides whether an event identified by key may proceed.
//
// Implementations use GCRA (Generic Cell Rate Algorithm) so that events are
// spread evenly over the period instead of bunching at window boundaries.
type RateLimiter interface {
	// Allow consumes one cell for key under config. When the event is
	// rejected, RetryAfter says when the next one will be accepted.
	Allow(ctx context.Context, key string, config RateLimitConfig) (RateLimitResult, error)
}

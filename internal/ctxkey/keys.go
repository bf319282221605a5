// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the request-scoped logger.
// Set by the HTTP request ID middleware, read by gate and login handlers.
type LoggerKey struct{}

// RequestIDKey is the context key type for the request correlation ID.
type RequestIDKey struct{}

// DecisionKey is the context key type for the gate decision of the current
// request. The gate middleware stores it once; content handlers only read it.
type DecisionKey struct{}

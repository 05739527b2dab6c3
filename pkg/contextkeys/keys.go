// Package contextkeys provides centralized context key definitions.
//
// All context keys used across the application must be defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains the authenticated session's external id (the
	// identity provider's subject claim).
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Type: string
	IdentityKey Key = "external_id"

	// RequestIDKey contains the request ID string (UUID)
	// Set by: middleware.RequestIDMiddleware
	// Used by: logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.LoggingMiddleware
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the session's external id to the context
func WithIdentity(ctx context.Context, externalID string) context.Context {
	return context.WithValue(ctx, IdentityKey, externalID)
}

// Identity retrieves the session's external id from the context
func Identity(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(IdentityKey).(string)
	return id, ok && id != ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID retrieves the request ID from the context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/campuskit/rollcall/pkg/contextkeys"
	"github.com/campuskit/rollcall/pkg/httputil"
)

// SessionVerifier validates a session token issued by the identity provider
// and returns the external id (subject) it was issued to.
type SessionVerifier interface {
	Verify(ctx context.Context, rawToken string) (externalID string, err error)
}

// AuthMiddleware authenticates requests using provider-issued session tokens
type AuthMiddleware struct {
	verifier SessionVerifier
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier SessionVerifier, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		externalID, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired session token")
			return
		}

		ctx := contextkeys.WithIdentity(r.Context(), externalID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/campuskit/rollcall/pkg/accounts"
	"github.com/campuskit/rollcall/pkg/contextkeys"
	"github.com/campuskit/rollcall/pkg/httputil"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

// AccountResolver looks up the internal account for a session identity
type AccountResolver interface {
	GetByExternalID(ctx context.Context, externalID string) (*accounts.Account, error)
}

// AdminMiddleware restricts routes to authenticated administrators. It must
// run after AuthMiddleware so the session identity is present in context.
type AdminMiddleware struct {
	resolver AccountResolver
}

// NewAdminMiddleware creates a new admin gate
func NewAdminMiddleware(resolver AccountResolver) *AdminMiddleware {
	return &AdminMiddleware{resolver: resolver}
}

// Handler wraps an HTTP handler with the admin role check
func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		externalID, ok := contextkeys.Identity(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		account, err := m.resolver.GetByExternalID(r.Context(), externalID)
		if errors.Is(err, accounts.ErrNotFound) {
			httputil.WriteForbidden(w, "admin access required")
			return
		}
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}

		if account.Role != whitelist.RoleAdmin {
			httputil.WriteForbidden(w, "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

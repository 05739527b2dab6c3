package accounts

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/contextkeys"
	"github.com/campuskit/rollcall/pkg/httputil"
	"github.com/campuskit/rollcall/pkg/idp"
	"github.com/campuskit/rollcall/pkg/observability"
)

// UserFetcher is the slice of the provider API the sync handler needs
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (*idp.User, error)
}

// Handlers exposes account sync and profile endpoints
type Handlers struct {
	service      *PostgresService
	materializer *Materializer
	provider     UserFetcher
	auditLog     audit.Logger
	metrics      *observability.Metrics
}

// NewHandlers creates new account handlers
func NewHandlers(service *PostgresService, materializer *Materializer, provider UserFetcher, auditLog audit.Logger, metrics *observability.Metrics) *Handlers {
	return &Handlers{
		service:      service,
		materializer: materializer,
		provider:     provider,
		auditLog:     auditLog,
		metrics:      metrics,
	}
}

// RegisterRoutes registers account routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/sync", h.sync).Methods("POST")
	router.HandleFunc("/me", h.me).Methods("GET")
}

// sync handles POST /auth/sync, the signed-in client's self-repair path for
// identities whose webhook never landed. Idempotent: an existing account
// short-circuits before any provider call.
func (h *Handlers) sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	externalID, ok := contextkeys.Identity(ctx)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	account, err := h.service.GetByExternalID(ctx, externalID)
	if err == nil {
		h.metrics.SyncRequestsTotal.WithLabelValues("exists").Inc()
		httputil.WriteSuccess(w, map[string]interface{}{
			"status":  "exists",
			"account": account,
		})
		return
	}
	if !errors.Is(err, ErrNotFound) {
		h.metrics.SyncRequestsTotal.WithLabelValues("error").Inc()
		httputil.WriteInternalError(w, err)
		return
	}

	user, err := h.provider.GetUser(ctx, externalID)
	if errors.Is(err, idp.ErrProviderUnavailable) {
		h.metrics.SyncRequestsTotal.WithLabelValues("provider_unavailable").Inc()
		httputil.WriteBadGateway(w, "identity provider unavailable, try again")
		return
	}
	if errors.Is(err, idp.ErrUserNotFound) {
		h.metrics.SyncRequestsTotal.WithLabelValues("error").Inc()
		httputil.WriteUnauthorized(w, "unknown identity")
		return
	}
	if err != nil {
		h.metrics.SyncRequestsTotal.WithLabelValues("error").Inc()
		httputil.WriteInternalError(w, err)
		return
	}

	email := user.PrimaryEmail()
	if email == "" {
		h.metrics.SyncRequestsTotal.WithLabelValues("error").Inc()
		httputil.WriteBadGateway(w, "identity provider returned no email for user")
		return
	}

	account, err = h.materializer.Materialize(ctx, externalID, email)
	switch {
	case errors.Is(err, ErrNotWhitelisted):
		h.denySync(w, r, email, "not_whitelisted", "email not whitelisted, contact your administrator")
		return
	case errors.Is(err, ErrDeactivated):
		h.denySync(w, r, email, "deactivated", "account deactivated, contact your administrator")
		return
	case err != nil:
		h.metrics.SyncRequestsTotal.WithLabelValues("error").Inc()
		httputil.WriteInternalError(w, err)
		return
	}

	h.metrics.SyncRequestsTotal.WithLabelValues("created").Inc()

	event := audit.NewEvent(ctx, audit.EventAccountMaterialized, audit.EventStatusSuccess)
	event.Email = email
	event.Message = "account materialized via sync"
	event.Metadata = map[string]interface{}{"role": string(account.Role)}
	audit.Record(ctx, h.auditLog, event)

	httputil.WriteCreated(w, map[string]interface{}{
		"status":  "created",
		"account": account,
	})
}

// denySync records a refused reconciliation and answers 403 with a
// machine-readable reason the client can act on.
func (h *Handlers) denySync(w http.ResponseWriter, r *http.Request, email, reason, message string) {
	ctx := r.Context()
	h.metrics.SyncRequestsTotal.WithLabelValues("denied").Inc()

	event := audit.NewEvent(ctx, audit.EventSyncDenied, audit.EventStatusDenied)
	event.Email = email
	event.IPAddress = r.RemoteAddr
	event.Message = "sync denied: " + reason
	audit.Record(ctx, h.auditLog, event)

	httputil.WriteForbiddenReason(w, message, reason)
}

// me handles GET /me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	externalID, ok := contextkeys.Identity(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), externalID)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "no account, call sync first")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, profile)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/accounts"
	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/middleware"
	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/settings"
	"github.com/campuskit/rollcall/pkg/webhook"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

// Dependencies carries everything the server routes to
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Verifier middleware.SessionVerifier
	Accounts middleware.AccountResolver

	WhitelistHandlers *whitelist.Handlers
	AccountHandlers   *accounts.Handlers
	WebhookProcessor  *webhook.Processor
	SettingsHandlers  *settings.Handlers
	AuditHandlers     *audit.Handlers
}

// Server is the rollcall HTTP API
type Server struct {
	router *mux.Router
}

// NewServer creates the API server and wires all routes
func NewServer(deps Dependencies) *Server {
	s := &Server{router: mux.NewRouter()}
	s.setupRoutes(deps)
	return s
}

// setupRoutes configures the three route tiers. The webhook endpoint stays
// public: its signature check is its authentication, and session middleware
// would reject the provider's deliveries.
func (s *Server) setupRoutes(deps Dependencies) {
	s.router.Use(
		middleware.RequestIDMiddleware,
		middleware.LoggingMiddleware(deps.Logger),
		middleware.MetricsMiddleware(deps.Metrics),
		middleware.RecoveryMiddleware(deps.Logger),
	)

	api := s.router.PathPrefix("/api").Subrouter()

	// Public: webhook ingestion and the sign-up pre-check.
	deps.WebhookProcessor.RegisterRoutes(api)
	deps.WhitelistHandlers.RegisterPublicRoutes(api)

	// Authenticated: sync reconciliation and own-profile reads.
	auth := middleware.NewAuthMiddleware(deps.Verifier, false)
	authed := api.PathPrefix("").Subrouter()
	authed.Use(auth.Handler)
	deps.AccountHandlers.RegisterRoutes(authed)

	// Admin: whitelist management, settings, audit queries.
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(auth.Handler, middleware.NewAdminMiddleware(deps.Accounts).Handler)
	deps.WhitelistHandlers.RegisterAdminRoutes(admin)
	deps.SettingsHandlers.RegisterAdminRoutes(admin)
	deps.AuditHandlers.RegisterAdminRoutes(admin)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

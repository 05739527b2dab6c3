package audit

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/httputil"
)

// Handlers exposes audit log queries to administrators
type Handlers struct {
	store *DBLogger
}

// NewHandlers creates new audit handlers
func NewHandlers(store *DBLogger) *Handlers {
	return &Handlers{store: store}
}

// RegisterAdminRoutes registers audit routes on an admin-gated router
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/audit-logs", h.list).Methods("GET")
}

// list handles GET /audit-logs with optional event_type, email, limit filters
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	filter := Filter{
		EventType: EventType(r.URL.Query().Get("event_type")),
		Email:     r.URL.Query().Get("email"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	events, err := h.store.List(r.Context(), filter)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"audit_logs": events})
}

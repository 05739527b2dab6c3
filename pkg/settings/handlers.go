package settings

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/httputil"
)

// Handlers exposes settings to administrators
type Handlers struct {
	service *PostgresService
}

// NewHandlers creates new settings handlers
func NewHandlers(service *PostgresService) *Handlers {
	return &Handlers{service: service}
}

// RegisterAdminRoutes registers settings routes on an admin-gated router
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.getAll).Methods("GET")
	router.HandleFunc("/settings", h.update).Methods("POST")
}

// getAll handles GET /settings
func (h *Handlers) getAll(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.GetAll(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, values)
}

// update handles POST /settings with a partial map of settings
func (h *Handlers) update(w http.ResponseWriter, r *http.Request) {
	var values map[string]interface{}
	if !httputil.ParseJSONOrError(w, r, &values) {
		return
	}
	if len(values) == 0 {
		httputil.WriteBadRequest(w, "no settings provided")
		return
	}

	err := h.service.SetAll(r.Context(), values)
	var unknownKey *ErrUnknownKey
	if errors.As(err, &unknownKey) {
		httputil.WriteBadRequest(w, unknownKey.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	values, err = h.service.GetAll(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, values)
}

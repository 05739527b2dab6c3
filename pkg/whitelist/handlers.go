package whitelist

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/httputil"
	"github.com/campuskit/rollcall/pkg/observability"
)

// InvitationSender dispatches identity provider invitations for entries.
// Implemented by invites.Dispatcher.
type InvitationSender interface {
	Send(ctx context.Context, entry *Entry) (invitationID string, err error)
	Resend(ctx context.Context, entry *Entry) (invitationID string, err error)
}

// Handlers provides the administrative whitelist HTTP API plus the public
// sign-up pre-check.
type Handlers struct {
	service  *PostgresService
	invites  InvitationSender
	auditLog audit.Logger
}

// NewHandlers creates new whitelist handlers
func NewHandlers(service *PostgresService, invites InvitationSender, auditLog audit.Logger) *Handlers {
	return &Handlers{
		service:  service,
		invites:  invites,
		auditLog: auditLog,
	}
}

// recordAudit writes a whitelist audit event, best-effort
func (h *Handlers) recordAudit(r *http.Request, eventType audit.EventType, email, message string) {
	event := audit.NewEvent(r.Context(), eventType, audit.EventStatusSuccess)
	event.Email = email
	event.IPAddress = r.RemoteAddr
	event.Message = message
	audit.Record(r.Context(), h.auditLog, event)
}

// RegisterAdminRoutes registers the admin whitelist routes. The router is
// expected to already carry authentication and the admin gate.
func (h *Handlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/whitelist", h.list).Methods("GET")
	router.HandleFunc("/whitelist", h.add).Methods("POST")
	router.HandleFunc("/whitelist/pending", h.listPending).Methods("GET")
	router.HandleFunc("/whitelist/{id}", h.remove).Methods("DELETE")
	router.HandleFunc("/whitelist/{id}/deactivate", h.deactivate).Methods("POST")
	router.HandleFunc("/whitelist/{id}/reactivate", h.reactivate).Methods("POST")
	router.HandleFunc("/whitelist/{id}/resend-invitation", h.resendInvitation).Methods("POST")
}

// RegisterPublicRoutes registers the unauthenticated sign-up pre-check
func (h *Handlers) RegisterPublicRoutes(router *mux.Router) {
	router.HandleFunc("/auth/check-whitelist", h.checkWhitelist).Methods("POST")
}

// list handles GET /whitelist
func (h *Handlers) list(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"whitelist": entries})
}

// listPending handles GET /whitelist/pending
func (h *Handlers) listPending(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListPending(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"whitelist": entries})
}

// addRequest is the POST /whitelist request body
type addRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department"`
}

// add handles POST /whitelist. The invitation is dispatched best-effort:
// a provider failure never fails the add, it is logged and left visible as
// invitation_sent=false so an administrator can resend.
func (h *Handlers) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	entry := &Entry{
		Email:      req.Email,
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
	}

	err := h.service.Add(r.Context(), entry)
	if errors.Is(err, ErrDuplicateEmail) {
		httputil.WriteConflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	logger := observability.FromContext(r.Context()).WithField("email", entry.Email)
	logger.Info("whitelist entry created")
	h.recordAudit(r, audit.EventWhitelistAdd, entry.Email, "added to whitelist as "+string(entry.Role))

	if _, err := h.invites.Send(r.Context(), entry); err != nil {
		logger.WithError(err).Warn("invitation send failed, entry created without invitation")
		event := audit.NewEvent(r.Context(), audit.EventInvitationFailed, audit.EventStatusFailure)
		event.Email = entry.Email
		event.ErrorMessage = err.Error()
		audit.Record(r.Context(), h.auditLog, event)
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"message":         "user added to whitelist",
		"whitelist_entry": entry,
	})
}

// remove handles DELETE /whitelist/{id}
func (h *Handlers) remove(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "whitelist entry not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil && !errors.Is(err, ErrNotFound) {
		httputil.WriteInternalError(w, err)
		return
	}

	h.recordAudit(r, audit.EventWhitelistRemove, entry.Email, "removed from whitelist")
	httputil.WriteSuccess(w, map[string]string{"message": "user removed from whitelist"})
}

// deactivate handles POST /whitelist/{id}/deactivate
func (h *Handlers) deactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// reactivate handles POST /whitelist/{id}/reactivate
func (h *Handlers) reactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "whitelist entry not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if active {
		err = h.service.Reactivate(r.Context(), entry.Email)
	} else {
		err = h.service.Deactivate(r.Context(), entry.Email)
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if active {
		h.recordAudit(r, audit.EventWhitelistReactivate, entry.Email, "whitelist entry reactivated")
	} else {
		h.recordAudit(r, audit.EventWhitelistDeactivate, entry.Email, "whitelist entry deactivated")
	}

	entry, err = h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"whitelist_entry": entry})
}

// resendInvitation handles POST /whitelist/{id}/resend-invitation. Unlike
// the send on add, a provider failure here surfaces to the caller: the side
// effect is the whole point of the call.
func (h *Handlers) resendInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	entry, err := h.service.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "whitelist entry not found")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	invitationID, err := h.invites.Resend(r.Context(), entry)
	if err != nil {
		observability.FromContext(r.Context()).
			WithField("email", entry.Email).
			WithError(err).
			Error("invitation resend failed")
		httputil.WriteBadGateway(w, "failed to send invitation")
		return
	}

	httputil.WriteSuccess(w, map[string]string{
		"message":       "invitation resent",
		"invitation_id": invitationID,
	})
}

// checkRequest is the POST /auth/check-whitelist request body
type checkRequest struct {
	Email string `json:"email"`
}

// checkWhitelist handles POST /auth/check-whitelist, the sign-up screen
// probe. Unauthenticated: responses reveal only what the sign-up flow
// already shows the person about their own email.
func (h *Handlers) checkWhitelist(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	entry, err := h.service.Find(r.Context(), req.Email)
	if errors.Is(err, ErrNotFound) {
		httputil.WriteNotFoundError(w, "email not found in whitelist, contact your administrator")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	if !entry.IsActive {
		httputil.WriteForbidden(w, "account deactivated, contact your administrator")
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"allowed":    true,
		"role":       entry.Role,
		"name":       entry.Name,
		"department": entry.Department,
	})
}

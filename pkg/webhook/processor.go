package webhook

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campuskit/rollcall/pkg/accounts"
	"github.com/campuskit/rollcall/pkg/audit"
	"github.com/campuskit/rollcall/pkg/httputil"
	"github.com/campuskit/rollcall/pkg/observability"
)

// Payload bytes beyond this are an error, not an event.
const maxBodySize = 1 << 20

// Materializer creates accounts for whitelisted identities
type Materializer interface {
	Materialize(ctx context.Context, externalID, email string) (*accounts.Account, error)
}

// AccountStore is the slice of the account service the processor needs
type AccountStore interface {
	UpdateEmail(ctx context.Context, externalID, email string) error
	DeleteByExternalID(ctx context.Context, externalID string) (*accounts.Account, error)
}

// Processor is the webhook HTTP endpoint
type Processor struct {
	verifier     *Verifier
	replay       *ReplayGuard
	materializer Materializer
	accounts     AccountStore
	auditLog     audit.Logger
	metrics      *observability.Metrics
}

// NewProcessor creates a webhook processor
func NewProcessor(verifier *Verifier, replay *ReplayGuard, materializer Materializer, accountStore AccountStore, auditLog audit.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		verifier:     verifier,
		replay:       replay,
		materializer: materializer,
		accounts:     accountStore,
		auditLog:     auditLog,
		metrics:      metrics,
	}
}

// RegisterRoutes registers the webhook endpoint. The route must stay
// outside authentication middleware; the signature is the authentication.
func (p *Processor) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhooks/identity", p.handle).Methods("POST")
}

func (p *Processor) handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil || len(body) > maxBodySize {
		httputil.WriteBadRequest(w, "invalid webhook")
		return
	}

	messageID := r.Header.Get("Webhook-Id")

	if err := p.verifier.Verify(r.Header, body); err != nil {
		p.metrics.WebhookVerifyFailuresTotal.Inc()
		logger.WithFields(map[string]interface{}{
			"remote_addr": r.RemoteAddr,
			"message_id":  messageID,
		}).WithError(err).Warn("webhook signature rejected")

		event := audit.NewEvent(ctx, audit.EventWebhookRejected, audit.EventStatusFailure)
		event.IPAddress = r.RemoteAddr
		event.ErrorMessage = err.Error()
		event.Metadata = map[string]interface{}{"message_id": messageID}
		audit.Record(ctx, p.auditLog, event)

		// Generic body: a caller failing verification learns nothing.
		httputil.WriteBadRequest(w, "invalid webhook")
		return
	}

	if p.replay.Seen(ctx, messageID) {
		logger.WithField("message_id", messageID).Debug("duplicate webhook delivery skipped")
		httputil.WriteSuccess(w, map[string]string{"status": "duplicate"})
		return
	}

	event, err := decodeEvent(body)
	if err != nil {
		logger.WithError(err).Warn("undecodable webhook payload")
		httputil.WriteBadRequest(w, "invalid webhook")
		return
	}

	if !event.Type.Known() {
		p.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		httputil.WriteSuccess(w, map[string]string{"status": "ignored"})
		return
	}

	// Create and update events are meaningless without an email, and
	// redelivery cannot repair the payload.
	if event.Type != EventUserDeleted && event.Email == "" {
		logger.WithField("event_type", string(event.Type)).Warn("webhook payload has no email address")
		httputil.WriteBadRequest(w, "invalid webhook")
		return
	}

	p.dispatch(w, r, event, messageID)
}

func (p *Processor) dispatch(w http.ResponseWriter, r *http.Request, event *Event, messageID string) {
	ctx := r.Context()
	eventType := string(event.Type)

	outcome, err := p.apply(ctx, event)
	if err != nil {
		p.metrics.WebhookEventsTotal.WithLabelValues(eventType, "error").Inc()
		observability.FromContext(ctx).
			WithField("event_type", eventType).
			WithError(err).
			Error("webhook processing failed")
		// 500 asks the provider to redeliver; every handler is idempotent.
		// The message id stays unmarked so the redelivery is processed,
		// and the body stays generic.
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "webhook processing failed")
		return
	}

	// Marked only now: a failed delivery must not look like a duplicate.
	p.replay.Mark(ctx, messageID)

	p.metrics.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()

	auditEvent := audit.NewEvent(ctx, audit.EventWebhookAccepted, audit.EventStatusSuccess)
	if outcome == "rejected" {
		auditEvent.Status = audit.EventStatusDenied
	}
	auditEvent.Email = event.Email
	auditEvent.ExternalID = event.ExternalID
	auditEvent.Message = eventType + " " + outcome
	auditEvent.Metadata = map[string]interface{}{"message_id": messageID}
	audit.Record(ctx, p.auditLog, auditEvent)

	if outcome == "processed" {
		switch event.Type {
		case EventUserUpdated:
			lifecycle := audit.NewEvent(ctx, audit.EventAccountEmailUpdated, audit.EventStatusSuccess)
			lifecycle.Email = event.Email
			lifecycle.ExternalID = event.ExternalID
			audit.Record(ctx, p.auditLog, lifecycle)
		case EventUserDeleted:
			lifecycle := audit.NewEvent(ctx, audit.EventAccountDeleted, audit.EventStatusSuccess)
			lifecycle.Email = event.Email
			lifecycle.ExternalID = event.ExternalID
			audit.Record(ctx, p.auditLog, lifecycle)
		}
	}

	httputil.WriteSuccess(w, map[string]string{"status": outcome})
}

// apply executes the event's side effect and classifies the outcome.
// Business refusals (unauthorized person) are outcomes, not errors: the
// provider has done its part and a retry cannot change the answer.
func (p *Processor) apply(ctx context.Context, event *Event) (string, error) {
	switch event.Type {
	case EventUserCreated, EventInvitationAccepted:
		_, err := p.materializer.Materialize(ctx, event.ExternalID, event.Email)
		if errors.Is(err, accounts.ErrNotWhitelisted) || errors.Is(err, accounts.ErrDeactivated) {
			return "rejected", nil
		}
		if err != nil {
			return "", err
		}
		return "processed", nil

	case EventUserUpdated:
		if err := p.accounts.UpdateEmail(ctx, event.ExternalID, event.Email); err != nil {
			return "", err
		}
		return "processed", nil

	case EventUserDeleted:
		deleted, err := p.accounts.DeleteByExternalID(ctx, event.ExternalID)
		if err != nil {
			return "", err
		}
		if deleted == nil {
			// Delete-before-create or redelivery; nothing to do.
			return "noop", nil
		}
		return "processed", nil
	}

	return "ignored", nil
}

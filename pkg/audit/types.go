package audit

import (
	"context"
	"time"

	"github.com/campuskit/rollcall/pkg/contextkeys"
)

// EventType represents the category of audit event
type EventType string

const (
	// Whitelist administration
	EventWhitelistAdd        EventType = "whitelist.add"
	EventWhitelistRemove     EventType = "whitelist.remove"
	EventWhitelistDeactivate EventType = "whitelist.deactivate"
	EventWhitelistReactivate EventType = "whitelist.reactivate"

	// Invitation dispatch
	EventInvitationSent   EventType = "invitation.sent"
	EventInvitationFailed EventType = "invitation.failed"

	// Webhook ingestion
	EventWebhookAccepted EventType = "webhook.accepted"
	EventWebhookRejected EventType = "webhook.rejected"

	// Account lifecycle
	EventAccountMaterialized EventType = "account.materialized"
	EventAccountEmailUpdated EventType = "account.email_updated"
	EventAccountDeleted      EventType = "account.deleted"

	// Sync reconciliation
	EventSyncDenied EventType = "sync.denied"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Subject identity, whichever parts are known
	Email      string `json:"email,omitempty"`
	ExternalID string `json:"external_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// NewEvent builds an event stamped with the current time and any request
// context carried on ctx.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
	if requestID := contextkeys.RequestID(ctx); requestID != "" {
		event.RequestID = requestID
	}
	if externalID, ok := contextkeys.Identity(ctx); ok {
		event.ExternalID = externalID
	}
	return event
}

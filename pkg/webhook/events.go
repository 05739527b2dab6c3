package webhook

import (
	"encoding/json"
	"fmt"
)

// EventType is the provider's event discriminator
type EventType string

const (
	EventUserCreated        EventType = "user.created"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventUserUpdated        EventType = "user.updated"
	EventUserDeleted        EventType = "user.deleted"
)

// Known reports whether this processor consumes the event type
func (t EventType) Known() bool {
	switch t {
	case EventUserCreated, EventInvitationAccepted, EventUserUpdated, EventUserDeleted:
		return true
	}
	return false
}

// envelope is the outer shape of every delivery
type envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userData is the payload shared by the user lifecycle events
type userData struct {
	ID                    string `json:"id"`
	PrimaryEmailAddressID string `json:"primary_email_address_id"`
	EmailAddresses        []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PublicMetadata map[string]interface{} `json:"public_metadata"`
}

// primaryEmail resolves the payload's primary address, falling back to the
// first registered address.
func (d *userData) primaryEmail() string {
	for _, addr := range d.EmailAddresses {
		if addr.ID == d.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(d.EmailAddresses) > 0 {
		return d.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Event is a decoded delivery
type Event struct {
	Type       EventType
	ExternalID string
	Email      string
}

// decodeEvent maps the loosely typed provider payload onto the closed set
// of events this processor understands. Unknown types decode successfully
// with Known()==false so the caller can acknowledge and ignore them.
func decodeEvent(body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event envelope has no type")
	}

	event := &Event{Type: env.Type}
	if !env.Type.Known() {
		return event, nil
	}

	var data userData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	if data.ID == "" {
		return nil, fmt.Errorf("%s payload has no user id", env.Type)
	}

	event.ExternalID = data.ID
	event.Email = data.primaryEmail()
	return event, nil
}

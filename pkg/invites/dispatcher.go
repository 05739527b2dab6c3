package invites

import (
	"context"
	"fmt"
	"time"

	"github.com/campuskit/rollcall/pkg/idp"
	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

// ProviderClient is the slice of the provider API the dispatcher needs
type ProviderClient interface {
	CreateInvitation(ctx context.Context, req *idp.InvitationRequest) (*idp.Invitation, error)
}

// Store records invitation outcomes on whitelist entries
type Store interface {
	MarkInvitationSent(ctx context.Context, id int64, invitationID string, sentAt time.Time) error
}

// Dispatcher sends provider invitations for whitelist entries. The intended
// role travels in the invitation's public metadata so the webhook processor
// can cross-check it after signup.
type Dispatcher struct {
	client    ProviderClient
	store     Store
	signInURL string
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewDispatcher creates a new invitation dispatcher
func NewDispatcher(client ProviderClient, store Store, signInURL string, metrics *observability.Metrics, logger *observability.Logger) *Dispatcher {
	return &Dispatcher{
		client:    client,
		store:     store,
		signInURL: signInURL,
		metrics:   metrics,
		logger:    logger,
	}
}

// Send dispatches an invitation for a freshly added entry
func (d *Dispatcher) Send(ctx context.Context, entry *whitelist.Entry) (string, error) {
	return d.dispatch(ctx, entry, false)
}

// Resend dispatches a fresh invitation for an entry that already has one.
// The new invitation id and timestamp overwrite the previous attempt.
func (d *Dispatcher) Resend(ctx context.Context, entry *whitelist.Entry) (string, error) {
	return d.dispatch(ctx, entry, true)
}

func (d *Dispatcher) dispatch(ctx context.Context, entry *whitelist.Entry, ignoreExisting bool) (string, error) {
	metadata := map[string]interface{}{
		"role":         string(entry.Role),
		"name":         entry.Name,
		"whitelist_id": entry.ID,
	}
	if entry.Department != "" {
		metadata["department"] = entry.Department
	}

	invitation, err := d.client.CreateInvitation(ctx, &idp.InvitationRequest{
		EmailAddress:   entry.Email,
		PublicMetadata: metadata,
		RedirectURL:    d.signInURL,
		IgnoreExisting: ignoreExisting,
	})
	if err != nil {
		d.metrics.InvitationSendsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to create invitation for %s: %w", entry.Email, err)
	}

	sentAt := time.Now().UTC()
	if err := d.store.MarkInvitationSent(ctx, entry.ID, invitation.ID, sentAt); err != nil {
		// The invitation went out; the entry just doesn't know. Surface the
		// error so an administrator resends rather than trusting stale state.
		d.metrics.InvitationSendsTotal.WithLabelValues("error").Inc()
		return invitation.ID, fmt.Errorf("invitation %s sent but not recorded: %w", invitation.ID, err)
	}

	entry.InvitationSent = true
	entry.InvitationSentAt = &sentAt
	entry.ProviderInvitationID = invitation.ID

	d.metrics.InvitationSendsTotal.WithLabelValues("success").Inc()
	d.logger.WithFields(map[string]interface{}{
		"email":         entry.Email,
		"invitation_id": invitation.ID,
	}).Info("invitation sent")

	return invitation.ID, nil
}

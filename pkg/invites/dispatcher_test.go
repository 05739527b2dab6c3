package invites

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/rollcall/pkg/idp"
	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

type fakeClient struct {
	err      error
	requests []*idp.InvitationRequest
}

func (f *fakeClient) CreateInvitation(_ context.Context, req *idp.InvitationRequest) (*idp.Invitation, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &idp.Invitation{ID: "inv_abc123", EmailAddress: req.EmailAddress, Status: "pending"}, nil
}

type fakeStore struct {
	err    error
	marked []string
}

func (f *fakeStore) MarkInvitationSent(_ context.Context, id int64, invitationID string, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.marked = append(f.marked, invitationID)
	return nil
}

func newDispatcher(client *fakeClient, store *fakeStore) *Dispatcher {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return NewDispatcher(client, store, "https://app.example.com/sign-in", metrics, logger)
}

func TestDispatcher_Send(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client := &fakeClient{}
		store := &fakeStore{}
		dispatcher := newDispatcher(client, store)

		entry := &whitelist.Entry{
			ID:         7,
			Email:      "bob@school.edu",
			Name:       "Bob",
			Role:       whitelist.RoleTeacher,
			Department: "Math",
		}
		invitationID, err := dispatcher.Send(context.Background(), entry)
		require.NoError(t, err)
		assert.Equal(t, "inv_abc123", invitationID)

		require.Len(t, client.requests, 1)
		req := client.requests[0]
		assert.Equal(t, "bob@school.edu", req.EmailAddress)
		assert.Equal(t, "https://app.example.com/sign-in", req.RedirectURL)
		assert.False(t, req.IgnoreExisting)
		assert.Equal(t, "TEACHER", req.PublicMetadata["role"])
		assert.Equal(t, "Math", req.PublicMetadata["department"])
		assert.Equal(t, int64(7), req.PublicMetadata["whitelist_id"])

		assert.Equal(t, []string{"inv_abc123"}, store.marked)
		assert.True(t, entry.InvitationSent)
		assert.Equal(t, "inv_abc123", entry.ProviderInvitationID)
		require.NotNil(t, entry.InvitationSentAt)
	})

	t.Run("students carry no department", func(t *testing.T) {
		client := &fakeClient{}
		dispatcher := newDispatcher(client, &fakeStore{})

		entry := &whitelist.Entry{ID: 1, Email: "alice@school.edu", Name: "Alice", Role: whitelist.RoleStudent}
		_, err := dispatcher.Send(context.Background(), entry)
		require.NoError(t, err)

		_, hasDepartment := client.requests[0].PublicMetadata["department"]
		assert.False(t, hasDepartment)
	})

	t.Run("provider failure", func(t *testing.T) {
		client := &fakeClient{err: idp.ErrProviderUnavailable}
		store := &fakeStore{}
		dispatcher := newDispatcher(client, store)

		entry := &whitelist.Entry{ID: 1, Email: "alice@school.edu", Name: "Alice", Role: whitelist.RoleStudent}
		_, err := dispatcher.Send(context.Background(), entry)
		assert.ErrorIs(t, err, idp.ErrProviderUnavailable)
		assert.Empty(t, store.marked)
		assert.False(t, entry.InvitationSent)
	})

	t.Run("record failure surfaces", func(t *testing.T) {
		client := &fakeClient{}
		store := &fakeStore{err: errors.New("connection reset")}
		dispatcher := newDispatcher(client, store)

		entry := &whitelist.Entry{ID: 1, Email: "alice@school.edu", Name: "Alice", Role: whitelist.RoleStudent}
		invitationID, err := dispatcher.Send(context.Background(), entry)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sent but not recorded")
		assert.Equal(t, "inv_abc123", invitationID)
	})
}

func TestDispatcher_Resend(t *testing.T) {
	client := &fakeClient{}
	store := &fakeStore{}
	dispatcher := newDispatcher(client, store)

	entry := &whitelist.Entry{
		ID:                   3,
		Email:                "carol@school.edu",
		Name:                 "Carol",
		Role:                 whitelist.RoleStudent,
		InvitationSent:       true,
		ProviderInvitationID: "inv_old",
	}
	invitationID, err := dispatcher.Resend(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, "inv_abc123", invitationID)
	assert.True(t, client.requests[0].IgnoreExisting)
	assert.Equal(t, "inv_abc123", entry.ProviderInvitationID)
}

package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/campuskit/rollcall/pkg/config"
)

// ErrProviderUnavailable indicates the provider API could not be reached or
// answered with a server error. Callers treat this as transient.
var ErrProviderUnavailable = errors.New("identity provider unavailable")

// ErrUserNotFound indicates the provider has no user with the given id
var ErrUserNotFound = errors.New("user not found at identity provider")

// Client is an HTTP client for the provider's management API
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a provider API client
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:   cfg.APIURL,
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// InvitationRequest is the payload for creating an invitation
type InvitationRequest struct {
	EmailAddress   string                 `json:"email_address"`
	PublicMetadata map[string]interface{} `json:"public_metadata,omitempty"`
	RedirectURL    string                 `json:"redirect_url,omitempty"`
	IgnoreExisting bool                   `json:"ignore_existing,omitempty"`
}

// Invitation is the provider's record of a pending invitation
type Invitation struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
}

// EmailAddress is one of a user's registered email addresses
type EmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// User is the provider's view of a registered user
type User struct {
	ID                    string                 `json:"id"`
	FirstName             string                 `json:"first_name"`
	LastName              string                 `json:"last_name"`
	EmailAddresses        []EmailAddress         `json:"email_addresses"`
	PrimaryEmailAddressID string                 `json:"primary_email_address_id"`
	PublicMetadata        map[string]interface{} `json:"public_metadata"`
}

// PrimaryEmail resolves the user's primary email address. Falls back to the
// first registered address when the primary pointer is dangling.
func (u *User) PrimaryEmail() string {
	for _, addr := range u.EmailAddresses {
		if addr.ID == u.PrimaryEmailAddressID {
			return addr.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// CreateInvitation asks the provider to email an invitation
func (c *Client) CreateInvitation(ctx context.Context, req *InvitationRequest) (*Invitation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invitation request: %w", err)
	}

	invitation := &Invitation{}
	if err := c.do(ctx, "POST", "/v1/invitations", bytes.NewReader(body), invitation); err != nil {
		return nil, err
	}
	return invitation, nil
}

// GetUser fetches a user's profile by provider user id
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	user := &User{}
	if err := c.do(ctx, "GET", "/v1/users/"+userID, nil, user); err != nil {
		return nil, err
	}
	return user, nil
}

// do performs a provider API call and decodes the JSON response into dest.
// Network failures and 5xx responses map to ErrProviderUnavailable.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: provider returned %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return ErrUserNotFound
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider rejected %s %s: status %d: %s", method, path, resp.StatusCode, detail)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode provider response: %w", err)
	}
	return nil
}

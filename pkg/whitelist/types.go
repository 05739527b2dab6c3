package whitelist

import (
	"errors"
	"fmt"
	"time"
)

// Role is the intended role for a whitelisted identity
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether the role is a known value
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Entry is a pre-authorization record permitting an email to obtain an
// account with a specified role.
type Entry struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"is_active"`

	InvitationSent       bool       `json:"invitation_sent"`
	InvitationSentAt     *time.Time `json:"invitation_sent_at,omitempty"`
	ProviderInvitationID string     `json:"provider_invitation_id,omitempty"`

	AccountCreated   bool       `json:"account_created"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields required before an entry can be stored
func (e *Entry) Validate() error {
	if e.Email == "" {
		return fmt.Errorf("email is required")
	}
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !e.Role.Valid() {
		return fmt.Errorf("invalid role %q: must be STUDENT, TEACHER, or ADMIN", e.Role)
	}
	if e.Role == RoleTeacher && e.Department == "" {
		return fmt.Errorf("department is required for teachers")
	}
	return nil
}

var (
	// ErrDuplicateEmail indicates the email is already whitelisted
	ErrDuplicateEmail = errors.New("email already exists in whitelist")

	// ErrNotFound indicates no whitelist entry exists for the lookup key
	ErrNotFound = errors.New("whitelist entry not found")
)

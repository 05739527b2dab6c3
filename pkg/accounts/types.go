package accounts

import (
	"errors"
	"time"

	"github.com/campuskit/rollcall/pkg/whitelist"
)

// Account links a provider identity to a local role
type Account struct {
	ID         int64          `json:"id"`
	ExternalID string         `json:"external_id"`
	Email      string         `json:"email"`
	Role       whitelist.Role `json:"role"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// StudentProfile is the role profile for student accounts
type StudentProfile struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TeacherProfile is the role profile for teacher accounts
type TeacherProfile struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	Name       string    `json:"name"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile is an account joined with its role profile. Exactly one of
// Student and Teacher is set for those roles; admins carry neither.
type Profile struct {
	Account *Account        `json:"account"`
	Student *StudentProfile `json:"student,omitempty"`
	Teacher *TeacherProfile `json:"teacher,omitempty"`
}

var (
	// ErrNotFound indicates no account exists for the lookup key
	ErrNotFound = errors.New("account not found")

	// ErrNotWhitelisted indicates the identity's email has no whitelist entry
	ErrNotWhitelisted = errors.New("email not whitelisted")

	// ErrDeactivated indicates the whitelist entry exists but is revoked
	ErrDeactivated = errors.New("whitelist entry deactivated")
)

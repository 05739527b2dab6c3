package whitelist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresService provides whitelist storage backed by PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new whitelist service and ensures the
// backing table exists.
func NewPostgresService(db *sql.DB) (*PostgresService, error) {
	s := &PostgresService{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure user_whitelist table: %w", err)
	}
	return s, nil
}

// ensureTable creates the user_whitelist table if it doesn't exist
func (s *PostgresService) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS user_whitelist (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL,
		department VARCHAR(255),
		is_active BOOLEAN NOT NULL DEFAULT true,
		invitation_sent BOOLEAN NOT NULL DEFAULT false,
		invitation_sent_at TIMESTAMP WITH TIME ZONE,
		provider_invitation_id VARCHAR(255),
		account_created BOOLEAN NOT NULL DEFAULT false,
		account_created_at TIMESTAMP WITH TIME ZONE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_user_whitelist_is_active ON user_whitelist(is_active);
	CREATE INDEX IF NOT EXISTS idx_user_whitelist_account_created ON user_whitelist(account_created);
	`

	_, err := s.db.Exec(query)
	return err
}

const entryColumns = `id, email, name, role, department, is_active,
	       invitation_sent, invitation_sent_at, provider_invitation_id,
	       account_created, account_created_at, created_at, updated_at`

// scanEntry scans a single row into an Entry
func scanEntry(row interface{ Scan(...interface{}) error }) (*Entry, error) {
	entry := &Entry{}
	var department, invitationID sql.NullString
	var invitedAt, materializedAt sql.NullTime

	err := row.Scan(
		&entry.ID, &entry.Email, &entry.Name, &entry.Role, &department, &entry.IsActive,
		&entry.InvitationSent, &invitedAt, &invitationID,
		&entry.AccountCreated, &materializedAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if department.Valid {
		entry.Department = department.String
	}
	if invitationID.Valid {
		entry.ProviderInvitationID = invitationID.String
	}
	if invitedAt.Valid {
		t := invitedAt.Time
		entry.InvitationSentAt = &t
	}
	if materializedAt.Valid {
		t := materializedAt.Time
		entry.AccountCreatedAt = &t
	}

	return entry, nil
}

// Add inserts a new whitelist entry. Returns ErrDuplicateEmail when the
// email is already whitelisted.
func (s *PostgresService) Add(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	var department interface{}
	if entry.Department != "" {
		department = entry.Department
	}

	query := `
		INSERT INTO user_whitelist (email, name, role, department, is_active)
		VALUES ($1, $2, $3, $4, true)
		RETURNING id, is_active, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, entry.Email, entry.Name, entry.Role, department).
		Scan(&entry.ID, &entry.IsActive, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to add whitelist entry: %w", err)
	}

	return nil
}

// Find retrieves a whitelist entry by email
func (s *PostgresService) Find(ctx context.Context, email string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_whitelist WHERE email = $1`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find whitelist entry: %w", err)
	}
	return entry, nil
}

// Get retrieves a whitelist entry by id
func (s *PostgresService) Get(ctx context.Context, id int64) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_whitelist WHERE id = $1`
	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get whitelist entry: %w", err)
	}
	return entry, nil
}

// List retrieves all whitelist entries, newest first
func (s *PostgresService) List(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_whitelist ORDER BY created_at DESC`
	return s.queryEntries(ctx, query)
}

// ListPending retrieves entries that have been invited but not yet
// materialized into accounts.
func (s *PostgresService) ListPending(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM user_whitelist
		WHERE invitation_sent = true AND account_created = false
		ORDER BY invitation_sent_at DESC`
	return s.queryEntries(ctx, query)
}

func (s *PostgresService) queryEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list whitelist entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Deactivate revokes an entry. Future materialization is blocked; an
// existing account is untouched.
func (s *PostgresService) Deactivate(ctx context.Context, email string) error {
	return s.setActive(ctx, email, false)
}

// Reactivate re-enables a revoked entry
func (s *PostgresService) Reactivate(ctx context.Context, email string) error {
	return s.setActive(ctx, email, true)
}

func (s *PostgresService) setActive(ctx context.Context, email string, active bool) error {
	query := `UPDATE user_whitelist SET is_active = $1, updated_at = NOW() WHERE email = $2`
	result, err := s.db.ExecContext(ctx, query, active, email)
	if err != nil {
		return fmt.Errorf("failed to update whitelist entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a whitelist entry by id
func (s *PostgresService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM user_whitelist WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete whitelist entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkInvitationSent records a successful invitation call on the entry.
// Called again on resend; the latest attempt always wins.
func (s *PostgresService) MarkInvitationSent(ctx context.Context, id int64, invitationID string, sentAt time.Time) error {
	query := `
		UPDATE user_whitelist
		SET invitation_sent = true, invitation_sent_at = $1,
		    provider_invitation_id = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := s.db.ExecContext(ctx, query, sentAt, invitationID, id)
	if err != nil {
		return fmt.Errorf("failed to record invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/campuskit/rollcall/pkg/whitelist"
)

// PostgresService provides account storage backed by PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new account service and ensures the backing
// tables exist.
func NewPostgresService(db *sql.DB) (*PostgresService, error) {
	s := &PostgresService{db: db}
	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure account tables: %w", err)
	}
	return s, nil
}

// ensureTables creates the accounts and role profile tables if they don't
// exist. The UNIQUE constraints on external_id and email are what make
// materialization race-safe; the code relies on them, not on locks.
func (s *PostgresService) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		external_id VARCHAR(255) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		role VARCHAR(20) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS students (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL UNIQUE REFERENCES accounts(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		department VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
	`

	_, err := s.db.Exec(query)
	return err
}

const accountColumns = `id, external_id, email, role, created_at, updated_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID, &account.ExternalID, &account.Email, &account.Role,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetByExternalID retrieves an account by provider user id
func (s *PostgresService) GetByExternalID(ctx context.Context, externalID string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE external_id = $1`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email
func (s *PostgresService) GetByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, email))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpdateEmail records a provider-side email change. A no-op when no account
// exists for the identity: an email change for an unmaterialized user is
// nothing to reconcile.
func (s *PostgresService) UpdateEmail(ctx context.Context, externalID, email string) error {
	query := `UPDATE accounts SET email = $1, updated_at = NOW() WHERE external_id = $2`
	_, err := s.db.ExecContext(ctx, query, email, externalID)
	if err != nil {
		return fmt.Errorf("failed to update account email: %w", err)
	}
	return nil
}

// DeleteByExternalID removes the account and, via cascade, its role
// profile. A no-op when no account exists: deletion is idempotent.
func (s *PostgresService) DeleteByExternalID(ctx context.Context, externalID string) (*Account, error) {
	query := `DELETE FROM accounts WHERE external_id = $1 RETURNING ` + accountColumns
	account, err := scanAccount(s.db.QueryRowContext(ctx, query, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete account: %w", err)
	}
	return account, nil
}

// GetProfile retrieves an account with its role profile
func (s *PostgresService) GetProfile(ctx context.Context, externalID string) (*Profile, error) {
	account, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	profile := &Profile{Account: account}

	switch account.Role {
	case whitelist.RoleStudent:
		student := &StudentProfile{}
		err = s.db.QueryRowContext(ctx,
			`SELECT id, account_id, name, created_at FROM students WHERE account_id = $1`,
			account.ID,
		).Scan(&student.ID, &student.AccountID, &student.Name, &student.CreatedAt)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to get student profile: %w", err)
		}
		if err == nil {
			profile.Student = student
		}
	case whitelist.RoleTeacher:
		teacher := &TeacherProfile{}
		err = s.db.QueryRowContext(ctx,
			`SELECT id, account_id, name, department, created_at FROM teachers WHERE account_id = $1`,
			account.ID,
		).Scan(&teacher.ID, &teacher.AccountID, &teacher.Name, &teacher.Department, &teacher.CreatedAt)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to get teacher profile: %w", err)
		}
		if err == nil {
			profile.Teacher = teacher
		}
	}

	return profile, nil
}

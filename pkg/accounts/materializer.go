package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/campuskit/rollcall/pkg/observability"
	"github.com/campuskit/rollcall/pkg/whitelist"
)

const uniqueViolation = "23505"

// WhitelistStore is the slice of the whitelist the materializer needs
type WhitelistStore interface {
	Find(ctx context.Context, email string) (*whitelist.Entry, error)
}

// Materializer creates local accounts for whitelisted provider identities.
// Safe to call concurrently for the same identity from any number of
// triggers; the first writer wins and everyone else adopts its account.
type Materializer struct {
	db        *sql.DB
	accounts  *PostgresService
	whitelist WhitelistStore
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewMaterializer creates a new materializer
func NewMaterializer(db *sql.DB, accounts *PostgresService, wl WhitelistStore, metrics *observability.Metrics, logger *observability.Logger) *Materializer {
	return &Materializer{
		db:        db,
		accounts:  accounts,
		whitelist: wl,
		metrics:   metrics,
		logger:    logger,
	}
}

// Materialize ensures an account exists for the identity. Returns the
// account whether this call created it or a prior one did.
//
// Returns ErrNotWhitelisted or ErrDeactivated when the whitelist denies the
// email; those are terminal for the caller, not retryable.
func (m *Materializer) Materialize(ctx context.Context, externalID, email string) (*Account, error) {
	// Fast path: already materialized.
	account, err := m.accounts.GetByExternalID(ctx, externalID)
	if err == nil {
		m.metrics.MaterializationsTotal.WithLabelValues("exists").Inc()
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	entry, err := m.whitelist.Find(ctx, email)
	if errors.Is(err, whitelist.ErrNotFound) {
		m.metrics.MaterializationsTotal.WithLabelValues("denied").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNotWhitelisted, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check whitelist: %w", err)
	}
	if !entry.IsActive {
		m.metrics.MaterializationsTotal.WithLabelValues("denied").Inc()
		return nil, fmt.Errorf("%w: %s", ErrDeactivated, email)
	}

	account, err = m.create(ctx, externalID, entry)
	if err == nil {
		m.metrics.MaterializationsTotal.WithLabelValues("created").Inc()
		m.logger.WithFields(map[string]interface{}{
			"external_id": externalID,
			"email":       entry.Email,
			"role":        string(entry.Role),
		}).Info("account materialized")
		return account, nil
	}

	// A concurrent materialization for the same identity or email beat us
	// to the insert. The winner's account is the account; adopt it.
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		m.metrics.MaterializationsTotal.WithLabelValues("race_lost").Inc()
		return m.adoptWinner(ctx, externalID, entry.Email)
	}

	m.metrics.MaterializationsTotal.WithLabelValues("error").Inc()
	return nil, err
}

// create inserts the account, its role profile, and the whitelist stamp in
// one transaction.
func (m *Materializer) create(ctx context.Context, externalID string, entry *whitelist.Entry) (*Account, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	account := &Account{
		ExternalID: externalID,
		Email:      entry.Email,
		Role:       entry.Role,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (external_id, email, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, externalID, entry.Email, entry.Role).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}

	switch entry.Role {
	case whitelist.RoleStudent:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO students (account_id, name) VALUES ($1, $2)`,
			account.ID, entry.Name)
	case whitelist.RoleTeacher:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teachers (account_id, name, department) VALUES ($1, $2, $3)`,
			account.ID, entry.Name, entry.Department)
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE user_whitelist
		SET account_created = true, account_created_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, entry.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

// adoptWinner fetches the account a concurrent materialization created,
// first by identity, then by email for the case where the same person
// signed up under two provider identities.
func (m *Materializer) adoptWinner(ctx context.Context, externalID, email string) (*Account, error) {
	account, err := m.accounts.GetByExternalID(ctx, externalID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	account, err = m.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lost materialization race but no winner found: %w", err)
	}
	return account, nil
}

package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Defaults are the values unknown keys read back as. The key set doubles
// as the allow-list for writes.
var Defaults = map[string]interface{}{
	"maintenanceMode": false,
	"backupEnabled":   true,
	"backupSchedule":  "02:00",
	"backupRetention": 30,
	"backupLocation":  "/backups",
	"twoFactorAuth":   true,
	"sessionTimeout":  30,
}

// ErrUnknownKey indicates a write to a key outside the known set
type ErrUnknownKey struct {
	Key string
}

func (e *ErrUnknownKey) Error() string {
	return fmt.Sprintf("unknown setting %q", e.Key)
}

// PostgresService provides settings storage backed by PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new settings service and ensures the
// backing table exists.
func NewPostgresService(db *sql.DB) (*PostgresService, error) {
	s := &PostgresService{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure system_settings table: %w", err)
	}
	return s, nil
}

// ensureTable creates the system_settings table if it doesn't exist
func (s *PostgresService) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS system_settings (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);
	`

	_, err := s.db.Exec(query)
	return err
}

// Get retrieves one setting, falling back to its default
func (s *PostgresService) Get(ctx context.Context, key string) (interface{}, error) {
	defaultValue, known := Defaults[key]
	if !known {
		return nil, &ErrUnknownKey{Key: key}
	}

	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_settings WHERE key = $1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return defaultValue, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %q: %w", key, err)
	}

	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("failed to decode setting %q: %w", key, err)
	}
	return value, nil
}

// GetAll retrieves every known setting, with defaults filled in
func (s *PostgresService) GetAll(ctx context.Context) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(Defaults))
	for key, value := range Defaults {
		result[key] = value
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM system_settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}

		// Rows for retired keys are ignored rather than surfaced.
		if _, known := Defaults[key]; !known {
			continue
		}

		var value interface{}
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to decode setting %q: %w", key, err)
		}
		result[key] = value
	}

	return result, rows.Err()
}

// Set upserts one setting
func (s *PostgresService) Set(ctx context.Context, key string, value interface{}) error {
	if _, known := Defaults[key]; !known {
		return &ErrUnknownKey{Key: key}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %q: %w", key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`, key, raw)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

// SetAll upserts a batch of settings. Validates every key before writing
// any so a bad batch is rejected whole.
func (s *PostgresService) SetAll(ctx context.Context, values map[string]interface{}) error {
	for key := range values {
		if _, known := Defaults[key]; !known {
			return &ErrUnknownKey{Key: key}
		}
	}

	for key, value := range values {
		if err := s.Set(ctx, key, value); err != nil {
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------
// SettingsStorage - Persistent key/value runtime configuration
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

// SettingsStorage implements SQLite persistence for settings
type SettingsStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewSettingsStorage creates a new settings storage instance
func NewSettingsStorage(db *SQLiteDB, logger arbor.ILogger) *SettingsStorage {
	return &SettingsStorage{db: db, logger: logger}
}

// GetSetting reads one value. Returns ErrNotFound for unknown keys.
func (s *SettingsStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.DB().QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", interfaces.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts one value.
func (s *SettingsStorage) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// AllSettings returns every stored key/value pair.
func (s *SettingsStorage) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.DB().QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

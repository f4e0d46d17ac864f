// -----------------------------------------------------------------------
// Migrations - Versioned schema evolution
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrate runs database migrations
func (s *SQLiteDB) migrate() error {
	ctx := context.Background()

	if err := s.createMigrationsTable(ctx); err != nil {
		return err
	}

	migrations := []migration{
		{version: 1, name: "initial_schema", up: migrateV1},
		{version: 2, name: "settings_table", up: migrateV2},
		{version: 3, name: "thumbnail_path", up: migrateV3},
		{version: 4, name: "job_updated_at", up: migrateV4},
	}

	for _, m := range migrations {
		if err := s.runMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
	}

	return nil
}

type migration struct {
	version int
	name    string
	up      func(context.Context, *sql.Tx) error
}

func (s *SQLiteDB) createMigrationsTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteDB) runMigration(ctx context.Context, m migration) error {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.version).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		return nil // Already applied
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.up(ctx, tx); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, strftime('%s', 'now'))",
		m.version, m.name)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// migrateV1 creates the initial schema
func migrateV1(ctx context.Context, tx *sql.Tx) error {
	for _, query := range initialSchema {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// migrateV2 adds the persistent settings table
func migrateV2(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`)
	return err
}

// migrateV3 adds thumbnail paths to files
func migrateV3(ctx context.Context, tx *sql.Tx) error {
	if columnExists(ctx, tx, "files", "thumbnail_path") {
		return nil
	}
	_, err := tx.ExecContext(ctx, `ALTER TABLE files ADD COLUMN thumbnail_path TEXT`)
	return err
}

// migrateV4 adds a last-write column to jobs. Every job write bumps it,
// so the stale-job sweep can tell a dead worker's job from one that is
// merely long-running.
func migrateV4(ctx context.Context, tx *sql.Tx) error {
	if columnExists(ctx, tx, "jobs", "updated_at") {
		return nil
	}
	_, err := tx.ExecContext(ctx, `ALTER TABLE jobs ADD COLUMN updated_at INTEGER`)
	return err
}

// columnExists reports whether a column is already present on a table.
func columnExists(ctx context.Context, tx *sql.Tx, table, column string) bool {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

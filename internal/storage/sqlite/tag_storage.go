// -----------------------------------------------------------------------
// TagStorage - SQLite persistence for tags and the file-tag relation
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/models"
)

// TagStorage implements SQLite persistence for tags
type TagStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewTagStorage creates a new tag storage instance
func NewTagStorage(db *SQLiteDB, logger arbor.ILogger) *TagStorage {
	return &TagStorage{db: db, logger: logger}
}

// normalizeTagName lowercases and trims a tag. Tags are unique by the
// normalized name.
func normalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddFileTag attaches a tag to a file, creating the tag on first use.
// Re-tagging an already tagged file is a no-op.
func (s *TagStorage) AddFileTag(ctx context.Context, fileID int64, name string) (*models.Tag, error) {
	name = normalizeTagName(name)
	if name == "" {
		return nil, fmt.Errorf("tag name is empty")
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// INSERT OR IGNORE handles the concurrent first-use race on the
	// unique name index.
	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO tags (name, usage_count, created_at) VALUES (?, 0, ?)`,
		name, now); err != nil {
		return nil, fmt.Errorf("failed to create tag %q: %w", name, err)
	}

	tag, err := scanTag(tx.QueryRowContext(ctx,
		`SELECT id, name, usage_count, created_at FROM tags WHERE name = ?`, name))
	if err != nil {
		return nil, fmt.Errorf("failed to load tag %q: %w", name, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO file_tags (file_id, tag_id) VALUES (?, ?)`, fileID, tag.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to tag file %d: %w", fileID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tags SET usage_count = usage_count + 1 WHERE id = ?`, tag.ID); err != nil {
			return nil, fmt.Errorf("failed to bump tag usage: %w", err)
		}
		tag.UsageCount++
	}

	return tag, tx.Commit()
}

// RemoveFileTag detaches a tag from a file.
func (s *TagStorage) RemoveFileTag(ctx context.Context, fileID int64, name string) error {
	name = normalizeTagName(name)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM file_tags
		WHERE file_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)`,
		fileID, name)
	if err != nil {
		return fmt.Errorf("failed to untag file %d: %w", fileID, err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = MAX(usage_count - 1, 0) WHERE name = ?`, name); err != nil {
			return fmt.Errorf("failed to drop tag usage: %w", err)
		}
	}

	return tx.Commit()
}

// TagsForFile returns a file's tags ordered by name.
func (s *TagStorage) TagsForFile(ctx context.Context, fileID int64) ([]*models.Tag, error) {
	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT t.id, t.name, t.usage_count, t.created_at
		FROM tags t JOIN file_tags ft ON ft.tag_id = t.id
		WHERE ft.file_id = ?
		ORDER BY t.name`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// ListTags returns all tags ordered by name.
func (s *TagStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	rows, err := s.db.DB().QueryContext(ctx,
		`SELECT id, name, usage_count, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	return scanTags(rows)
}

// DeleteUnusedTags garbage-collects tags no file references.
func (s *TagStorage) DeleteUnusedTags(ctx context.Context) (int, error) {
	res, err := s.db.DB().ExecContext(ctx, `
		DELETE FROM tags WHERE id NOT IN (SELECT DISTINCT tag_id FROM file_tags)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused tags: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteFileTags removes all tag links for the given files, adjusting
// usage counts.
func (s *TagStorage) DeleteFileTags(ctx context.Context, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, fid := range fileIDs {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET usage_count = MAX(usage_count - 1, 0)
			WHERE id IN (SELECT tag_id FROM file_tags WHERE file_id = ?)`, fid); err != nil {
			return fmt.Errorf("failed to adjust tag usage for file %d: %w", fid, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM file_tags WHERE file_id = ?`, fid); err != nil {
			return fmt.Errorf("failed to delete tags for file %d: %w", fid, err)
		}
	}

	return tx.Commit()
}

func scanTag(row scanner) (*models.Tag, error) {
	var t models.Tag
	var createdAt int64
	if err := row.Scan(&t.ID, &t.Name, &t.UsageCount, &createdAt); err != nil {
		return nil, err
	}
	t.CreatedAt = unixToTime(createdAt)
	return &t, nil
}

func scanTags(rows *sql.Rows) ([]*models.Tag, error) {
	var tags []*models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

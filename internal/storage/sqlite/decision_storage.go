// -----------------------------------------------------------------------
// DecisionStorage - Append-only audit trail of review actions
// -----------------------------------------------------------------------

package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/models"
)

// DecisionStorage implements SQLite persistence for user decisions
type DecisionStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewDecisionStorage creates a new decision storage instance
func NewDecisionStorage(db *SQLiteDB, logger arbor.ILogger) *DecisionStorage {
	return &DecisionStorage{db: db, logger: logger}
}

// RecordDecision appends one audit record. Decisions are never updated.
func (s *DecisionStorage) RecordDecision(ctx context.Context, decision *models.UserDecision) error {
	decidedAt := decision.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now().UTC()
	}

	res, err := s.db.DB().ExecContext(ctx, `
		INSERT INTO user_decisions (file_id, decision_type, decision_value, decided_at)
		VALUES (?, ?, ?, ?)`,
		decision.FileID, string(decision.DecisionType), decision.DecisionValue, decidedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read decision id: %w", err)
	}
	decision.ID = id
	decision.DecidedAt = decidedAt
	return nil
}

// ListDecisions returns a file's audit trail, newest first.
func (s *DecisionStorage) ListDecisions(ctx context.Context, fileID int64, limit int) ([]*models.UserDecision, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.DB().QueryContext(ctx, `
		SELECT id, file_id, decision_type, decision_value, decided_at
		FROM user_decisions WHERE file_id = ?
		ORDER BY decided_at DESC, id DESC LIMIT ?`, fileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*models.UserDecision
	for rows.Next() {
		var d models.UserDecision
		var decisionType string
		var decidedAt int64
		if err := rows.Scan(&d.ID, &d.FileID, &decisionType, &d.DecisionValue, &decidedAt); err != nil {
			return nil, err
		}
		d.DecisionType = models.DecisionType(decisionType)
		d.DecidedAt = unixToTime(decidedAt)
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}

// DeleteDecisionsForFiles purges audit rows during finalize.
func (s *DecisionStorage) DeleteDecisionsForFiles(ctx context.Context, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, fid := range fileIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_decisions WHERE file_id = ?`, fid); err != nil {
			return fmt.Errorf("failed to delete decisions for file %d: %w", fid, err)
		}
	}
	return tx.Commit()
}

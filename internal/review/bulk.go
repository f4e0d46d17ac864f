// -----------------------------------------------------------------------
// Bulk Operations - Multi-file review actions
// -----------------------------------------------------------------------

package review

import (
	"context"
	"time"

	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// Bulk review scopes.
const (
	ScopeSelection  = "selection"
	ScopeConfidence = "confidence"
	ScopeFiltered   = "filtered"
)

// Bulk review actions.
const (
	ActionConfirm = "confirm"
	ActionDiscard = "discard"
)

// BulkDiscard discards a set of files. Equivalent to per-file discard:
// each file donates its timestamp candidates to kept group siblings
// before leaving its groups.
func (s *Service) BulkDiscard(ctx context.Context, fileIDs []int64) (int, error) {
	files, err := s.store.Files().GetFilesByIDs(ctx, fileIDs)
	if err != nil {
		return 0, err
	}

	discarded := 0
	for _, f := range files {
		if f.Discarded {
			continue
		}
		if err := s.discardOne(ctx, f); err != nil {
			return discarded, err
		}
		s.recordDecision(ctx, f.ID, models.DecisionDiscard, map[string]interface{}{"bulk": true})
		discarded++
	}
	return discarded, nil
}

// BulkUndiscard restores a set of discarded files.
func (s *Service) BulkUndiscard(ctx context.Context, fileIDs []int64) (int, error) {
	restored := 0
	for _, id := range fileIDs {
		file, err := s.store.Files().GetFile(ctx, id)
		if err != nil {
			return restored, err
		}
		if !file.Discarded {
			continue
		}
		if _, err := s.Undiscard(ctx, id); err != nil {
			return restored, err
		}
		restored++
	}
	return restored, nil
}

// BulkAddTags applies the same tag set to many files.
func (s *Service) BulkAddTags(ctx context.Context, fileIDs []int64, names []string) (int, error) {
	tagged := 0
	for _, id := range fileIDs {
		if _, err := s.AddTags(ctx, id, names); err != nil {
			return tagged, err
		}
		tagged++
	}
	return tagged, nil
}

// BulkKeepDuplicates removes the exact-group link from a set of files
// ("not a duplicate"), dissolving groups that fall to one member.
func (s *Service) BulkKeepDuplicates(ctx context.Context, fileIDs []int64) (int, error) {
	return s.bulkClearGroups(ctx, fileIDs, false)
}

// BulkKeepSimilar removes the similar-group link from a set of files
// ("not similar").
func (s *Service) BulkKeepSimilar(ctx context.Context, fileIDs []int64) (int, error) {
	return s.bulkClearGroups(ctx, fileIDs, true)
}

func (s *Service) bulkClearGroups(ctx context.Context, fileIDs []int64, similar bool) (int, error) {
	files, err := s.store.Files().GetFilesByIDs(ctx, fileIDs)
	if err != nil {
		return 0, err
	}

	cleared := 0
	var changed []*models.File
	for _, f := range files {
		if similar {
			if f.SimilarGroupID == nil {
				continue
			}
			f.ClearSimilarGroup()
		} else {
			if f.ExactGroupID == nil {
				continue
			}
			f.ExactGroupID = nil
			f.ExactGroupConfidence = nil
		}
		changed = append(changed, f)
		cleared++
	}
	if len(changed) == 0 {
		return 0, nil
	}

	// Snapshot before the update so the cleanup sees the old group ids.
	touched := touchedGroupsBefore(ctx, s, fileIDs, similar)

	if err := s.store.Files().UpdateFiles(ctx, changed); err != nil {
		return 0, err
	}
	if err := s.cleanupOrphans(ctx, touched); err != nil {
		return 0, err
	}

	decisionType := models.DecisionKeepAllDuplicates
	if similar {
		decisionType = models.DecisionKeepAllSimilar
	}
	for _, f := range changed {
		s.recordDecision(ctx, f.ID, decisionType, map[string]interface{}{"bulk": true})
	}
	return cleared, nil
}

// touchedGroupsBefore re-reads the pre-mutation group membership for a
// set of files. Cheap at household scale.
func touchedGroupsBefore(ctx context.Context, s *Service, fileIDs []int64, similar bool) []string {
	files, err := s.store.Files().GetFilesByIDs(ctx, fileIDs)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range files {
		id := f.ExactGroupID
		if similar {
			id = f.SimilarGroupID
		}
		if id == nil {
			continue
		}
		if _, ok := seen[*id]; ok {
			continue
		}
		seen[*id] = struct{}{}
		ids = append(ids, *id)
	}
	return ids
}

// AutoConfirmHigh confirms every HIGH-confidence unreviewed file of a
// job using its detected timestamp.
func (s *Service) AutoConfirmHigh(ctx context.Context, jobID int64) (int, error) {
	files, err := s.store.Files().GetJobFiles(ctx, jobID)
	if err != nil {
		return 0, err
	}

	confirmed := 0
	now := time.Now().UTC()
	var changed []*models.File
	for _, f := range files {
		if f.Discarded || f.ProcessingError != nil || f.ReviewedAt != nil {
			continue
		}
		if f.Confidence != models.ConfidenceHigh || f.DetectedTimestamp == nil {
			continue
		}
		ts := f.DetectedTimestamp.UTC()
		reviewedAt := now
		f.FinalTimestamp = &ts
		f.ReviewedAt = &reviewedAt
		changed = append(changed, f)
		confirmed++
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if err := s.store.Files().UpdateFiles(ctx, changed); err != nil {
		return 0, err
	}
	for _, f := range changed {
		s.recordDecision(ctx, f.ID, models.DecisionAutoConfirm, map[string]interface{}{
			"final_timestamp": f.FinalTimestamp.Format(time.RFC3339),
		})
	}
	return confirmed, nil
}

// BulkReviewRequest selects a target set within one job and an action to
// apply to it.
type BulkReviewRequest struct {
	JobID      int64
	Scope      string // selection | confidence | filtered
	Action     string // confirm | discard
	FileIDs    []int64                    // scope selection
	Confidence models.ConfidenceLevel     // scope confidence
	Filter     *interfaces.FileListOptions // scope filtered
}

// BulkReview applies one action to a scoped file set.
func (s *Service) BulkReview(ctx context.Context, req *BulkReviewRequest) (int, error) {
	var targets []*models.File

	switch req.Scope {
	case ScopeSelection:
		files, err := s.store.Files().GetFilesByIDs(ctx, req.FileIDs)
		if err != nil {
			return 0, err
		}
		targets = files
	case ScopeConfidence:
		files, err := s.store.Files().GetJobFiles(ctx, req.JobID)
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			if f.Confidence == req.Confidence {
				targets = append(targets, f)
			}
		}
	case ScopeFiltered:
		filter := req.Filter
		if filter == nil {
			filter = &interfaces.FileListOptions{}
		}
		// Page through the full filtered set.
		filter.Offset = 0
		filter.Limit = 500
		for {
			page, err := s.store.Files().ListFiles(ctx, req.JobID, filter)
			if err != nil {
				return 0, err
			}
			targets = append(targets, page.Files...)
			if len(targets) >= page.Total || len(page.Files) == 0 {
				break
			}
			filter.Offset += len(page.Files)
		}
	default:
		return 0, ErrUnknownScope
	}

	switch req.Action {
	case ActionConfirm:
		confirmed := 0
		now := time.Now().UTC()
		for _, f := range targets {
			if f.Discarded || f.ProcessingError != nil || f.DetectedTimestamp == nil {
				continue
			}
			ts := f.DetectedTimestamp.UTC()
			reviewedAt := now
			f.FinalTimestamp = &ts
			f.ReviewedAt = &reviewedAt
			if err := s.store.Files().UpdateFile(ctx, f); err != nil {
				return confirmed, err
			}
			s.recordDecision(ctx, f.ID, models.DecisionTimestampOverride, map[string]interface{}{
				"bulk":            true,
				"final_timestamp": ts.Format(time.RFC3339),
			})
			confirmed++
		}
		return confirmed, nil
	case ActionDiscard:
		ids := make([]int64, 0, len(targets))
		for _, f := range targets {
			ids = append(ids, f.ID)
		}
		return s.BulkDiscard(ctx, ids)
	}
	return 0, ErrUnknownAction
}

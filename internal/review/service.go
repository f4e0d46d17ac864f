// -----------------------------------------------------------------------
// Review Service - Applies user decisions to the file graph while
// preserving its invariants
// -----------------------------------------------------------------------

package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/common"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
)

// Validation errors surfaced to callers as 4xx responses.
var (
	ErrFileDiscarded    = errors.New("file is discarded")
	ErrFileFailed       = errors.New("file has a processing error")
	ErrNoTimestamp      = errors.New("file has no detected timestamp")
	ErrGroupNotFound    = errors.New("group not found")
	ErrNothingToKeep    = errors.New("keep set contains no group member")
	ErrUnknownScope     = errors.New("unknown bulk review scope")
	ErrUnknownAction    = errors.New("unknown bulk review action")
	ErrJobNotReviewable = errors.New("job is not in a reviewable state")
)

// ControlSignaller lets the review layer nudge an in-process scheduler
// loop; the durable status write is what actually stops the job.
type ControlSignaller interface {
	Signal(jobID int64, action models.ControlAction)
}

// Service implements the mutation API. Every operation is a short store
// transaction followed by orphan cleanup on the groups it touched.
type Service struct {
	store   interfaces.StorageManager
	control ControlSignaller
	logger  arbor.ILogger
}

// NewService creates the review service. control may be nil when no
// scheduler runs in this process.
func NewService(store interfaces.StorageManager, control ControlSignaller, logger arbor.ILogger) *Service {
	return &Service{store: store, control: control, logger: logger}
}

// ConfirmTimestamp sets the user-confirmed timestamp on a file and marks
// it reviewed.
func (s *Service) ConfirmTimestamp(ctx context.Context, fileID int64, instant time.Time, source string) (*models.File, error) {
	file, err := s.store.Files().GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Discarded {
		return nil, ErrFileDiscarded
	}

	utc := instant.UTC()
	now := time.Now().UTC()
	file.FinalTimestamp = &utc
	file.ReviewedAt = &now
	if source != "" {
		file.TimestampSource = source
	}

	if err := s.store.Files().UpdateFile(ctx, file); err != nil {
		return nil, err
	}

	s.recordDecision(ctx, fileID, models.DecisionTimestampOverride, map[string]interface{}{
		"final_timestamp": utc.Format(time.RFC3339),
		"source":          file.TimestampSource,
	})
	return file, nil
}

// Unreview clears the confirmation, returning the file to the unreviewed
// pool.
func (s *Service) Unreview(ctx context.Context, fileID int64) (*models.File, error) {
	file, err := s.store.Files().GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	file.FinalTimestamp = nil
	file.ReviewedAt = nil
	if err := s.store.Files().UpdateFile(ctx, file); err != nil {
		return nil, err
	}

	s.recordDecision(ctx, fileID, models.DecisionUnreview, nil)
	return file, nil
}

// Discard marks a file discarded: review fields are cleared, its
// timestamp evidence is donated to kept group siblings, and it leaves
// any groups it was in.
func (s *Service) Discard(ctx context.Context, fileID int64) (*models.File, error) {
	file, err := s.store.Files().GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.Discarded {
		return file, nil
	}

	if err := s.discardOne(ctx, file); err != nil {
		return nil, err
	}
	s.recordDecision(ctx, fileID, models.DecisionDiscard, nil)
	return file, nil
}

// discardOne performs the discard mutation for one loaded file: candidate
// accumulation, field clearing, group removal, orphan cleanup.
func (s *Service) discardOne(ctx context.Context, file *models.File) error {
	if err := s.accumulateCandidates(ctx, file); err != nil {
		return err
	}

	touched := touchedGroups(file)

	file.Discarded = true
	file.FinalTimestamp = nil
	file.ReviewedAt = nil
	file.ClearGroups()

	if err := s.store.Files().UpdateFile(ctx, file); err != nil {
		return err
	}
	return s.cleanupOrphans(ctx, touched)
}

// Undiscard restores a discarded file. When non-discarded files of the
// same job share its content hash, the exact group is re-established.
func (s *Service) Undiscard(ctx context.Context, fileID int64) (*models.File, error) {
	file, err := s.store.Files().GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if !file.Discarded {
		return file, nil
	}

	file.Discarded = false
	if err := s.store.Files().UpdateFile(ctx, file); err != nil {
		return nil, err
	}

	if err := s.relinkBySHA(ctx, file); err != nil {
		return nil, err
	}

	s.recordDecision(ctx, fileID, models.DecisionUndiscard, nil)
	return file, nil
}

// relinkBySHA restores an exact group between the file and its same-job
// content-hash peers. Duplicate inference across jobs happens only at
// import time.
func (s *Service) relinkBySHA(ctx context.Context, file *models.File) error {
	if file.SHA256 == nil {
		return nil
	}

	jobIDs, err := s.store.Files().JobIDsForFile(ctx, file.ID)
	if err != nil {
		return err
	}

	for _, jobID := range jobIDs {
		peers, err := s.store.Files().GetFilesBySHA(ctx, jobID, *file.SHA256)
		if err != nil {
			return err
		}

		members := make([]*models.File, 0, len(peers))
		var groupID *string
		for _, p := range peers {
			if p.Discarded || p.ID == file.ID {
				continue
			}
			members = append(members, p)
			if p.ExactGroupID != nil {
				groupID = p.ExactGroupID
			}
		}
		if len(members) == 0 {
			continue
		}

		if groupID == nil {
			id := common.NewGroupID()
			groupID = &id
		}
		high := models.ConfidenceHigh

		members = append(members, file)
		for _, m := range members {
			m.ExactGroupID = groupID
			c := high
			m.ExactGroupConfidence = &c
		}
		return s.store.Files().UpdateFiles(ctx, members)
	}
	return nil
}

// accumulateCandidates donates the file's timestamp candidates to every
// kept sibling of its groups, deduplicated by (instant, source). Evidence
// survives when the user keeps a representative.
func (s *Service) accumulateCandidates(ctx context.Context, file *models.File) error {
	if len(file.TimestampCandidates) == 0 {
		return nil
	}

	siblings := make(map[int64]*models.File)
	for _, groupID := range []*string{file.ExactGroupID, file.SimilarGroupID} {
		if groupID == nil {
			continue
		}
		members, err := s.groupMembers(ctx, *groupID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.ID != file.ID && !m.Discarded {
				siblings[m.ID] = m
			}
		}
	}

	var changed []*models.File
	for _, sibling := range siblings {
		if sibling.MergeCandidates(file.TimestampCandidates) > 0 {
			changed = append(changed, sibling)
		}
	}
	if len(changed) == 0 {
		return nil
	}
	return s.store.Files().UpdateFiles(ctx, changed)
}

// groupMembers loads a group by id regardless of which kind it is.
func (s *Service) groupMembers(ctx context.Context, groupID string) ([]*models.File, error) {
	members, err := s.store.Files().GetExactGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return members, nil
	}
	return s.store.Files().GetSimilarGroup(ctx, groupID)
}

// touchedGroups snapshots the group ids a mutation is about to disturb.
func touchedGroups(files ...*models.File) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, f := range files {
		for _, id := range []*string{f.ExactGroupID, f.SimilarGroupID} {
			if id == nil {
				continue
			}
			if _, ok := seen[*id]; ok {
				continue
			}
			seen[*id] = struct{}{}
			ids = append(ids, *id)
		}
	}
	return ids
}

// cleanupOrphans dissolves any touched group left with a single
// non-discarded member.
func (s *Service) cleanupOrphans(ctx context.Context, groupIDs []string) error {
	for _, groupID := range groupIDs {
		if err := s.cleanupGroup(ctx, groupID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) cleanupGroup(ctx context.Context, groupID string) error {
	members, err := s.groupMembers(ctx, groupID)
	if err != nil {
		return err
	}

	var remaining []*models.File
	for _, m := range members {
		if !m.Discarded {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) != 1 {
		return nil
	}

	// A group of one is no group.
	orphan := remaining[0]
	if orphan.ExactGroupID != nil && *orphan.ExactGroupID == groupID {
		orphan.ExactGroupID = nil
		orphan.ExactGroupConfidence = nil
	}
	if orphan.SimilarGroupID != nil && *orphan.SimilarGroupID == groupID {
		orphan.ClearSimilarGroup()
	}

	s.logger.Debug().
		Str("group_id", groupID).
		Int64("file_id", orphan.ID).
		Msg("Dissolved single-member group")
	return s.store.Files().UpdateFile(ctx, orphan)
}

// AddTags attaches normalized tags to a file, creating them on first use.
func (s *Service) AddTags(ctx context.Context, fileID int64, names []string) ([]*models.Tag, error) {
	if _, err := s.store.Files().GetFile(ctx, fileID); err != nil {
		return nil, err
	}

	for _, name := range names {
		if _, err := s.store.Tags().AddFileTag(ctx, fileID, name); err != nil {
			return nil, fmt.Errorf("failed to add tag %q: %w", name, err)
		}
	}
	return s.store.Tags().TagsForFile(ctx, fileID)
}

// RemoveTag detaches one tag from a file.
func (s *Service) RemoveTag(ctx context.Context, fileID int64, name string) ([]*models.Tag, error) {
	if err := s.store.Tags().RemoveFileTag(ctx, fileID, name); err != nil {
		return nil, err
	}
	return s.store.Tags().TagsForFile(ctx, fileID)
}

// recordDecision appends to the audit trail. The trail is advisory, so
// failures are logged rather than propagated.
func (s *Service) recordDecision(ctx context.Context, fileID int64, decisionType models.DecisionType, value map[string]interface{}) {
	payload := ""
	if value != nil {
		if data, err := json.Marshal(value); err == nil {
			payload = string(data)
		}
	}

	decision := &models.UserDecision{
		FileID:        fileID,
		DecisionType:  decisionType,
		DecisionValue: payload,
		DecidedAt:     time.Now().UTC(),
	}
	if err := s.store.Decisions().RecordDecision(ctx, decision); err != nil {
		s.logger.Warn().Err(err).Int64("file_id", fileID).Str("type", string(decisionType)).Msg("Failed to record decision")
	}
}

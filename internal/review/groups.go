// -----------------------------------------------------------------------
// Group Resolutions - Keep-all, resolve-similar, and group payloads
// -----------------------------------------------------------------------

package review

import (
	"context"

	"github.com/ternarybob/mediaparser/internal/duplicates"
	"github.com/ternarybob/mediaparser/internal/models"
)

// KeepAllDuplicates dissolves an exact group, keeping every member.
func (s *Service) KeepAllDuplicates(ctx context.Context, groupID string) error {
	members, err := s.store.Files().GetExactGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return ErrGroupNotFound
	}

	for _, m := range members {
		m.ExactGroupID = nil
		m.ExactGroupConfidence = nil
	}
	if err := s.store.Files().UpdateFiles(ctx, members); err != nil {
		return err
	}

	for _, m := range members {
		s.recordDecision(ctx, m.ID, models.DecisionKeepAllDuplicates, map[string]interface{}{"group_id": groupID})
	}
	return nil
}

// KeepAllSimilar dissolves a similar group, keeping every member.
func (s *Service) KeepAllSimilar(ctx context.Context, groupID string) error {
	members, err := s.store.Files().GetSimilarGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return ErrGroupNotFound
	}

	for _, m := range members {
		m.ClearSimilarGroup()
	}
	if err := s.store.Files().UpdateFiles(ctx, members); err != nil {
		return err
	}

	for _, m := range members {
		s.recordDecision(ctx, m.ID, models.DecisionKeepAllSimilar, map[string]interface{}{"group_id": groupID})
	}
	return nil
}

// ResolveSimilarGroup keeps the named members and discards the rest. The
// group dissolves either way.
func (s *Service) ResolveSimilarGroup(ctx context.Context, groupID string, keepIDs []int64) error {
	members, err := s.store.Files().GetSimilarGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return ErrGroupNotFound
	}

	keep := make(map[int64]bool, len(keepIDs))
	for _, id := range keepIDs {
		keep[id] = true
	}
	anyKept := false
	for _, m := range members {
		if keep[m.ID] {
			anyKept = true
		}
	}
	if !anyKept {
		return ErrNothingToKeep
	}

	// Donate evidence from the losers before the group dissolves.
	for _, m := range members {
		if !keep[m.ID] && !m.Discarded {
			if err := s.accumulateCandidates(ctx, m); err != nil {
				return err
			}
		}
	}

	for _, m := range members {
		m.ClearSimilarGroup()
	}
	if err := s.store.Files().UpdateFiles(ctx, members); err != nil {
		return err
	}

	for _, m := range members {
		if keep[m.ID] || m.Discarded {
			continue
		}
		if err := s.discardOne(ctx, m); err != nil {
			return err
		}
		s.recordDecision(ctx, m.ID, models.DecisionResolveSimilar, map[string]interface{}{
			"group_id": groupID,
			"kept":     false,
		})
	}
	for _, id := range keepIDs {
		s.recordDecision(ctx, id, models.DecisionResolveSimilar, map[string]interface{}{
			"group_id": groupID,
			"kept":     true,
		})
	}
	return nil
}

// ExactGroups assembles the API payload for a job's exact duplicate
// groups, with per-member quality metrics and a recommended keep.
func (s *Service) ExactGroups(ctx context.Context, jobID int64) ([]*models.DuplicateGroup, error) {
	return s.groupPayloads(ctx, jobID, false)
}

// SimilarGroups assembles the API payload for a job's similar groups.
func (s *Service) SimilarGroups(ctx context.Context, jobID int64) ([]*models.DuplicateGroup, error) {
	return s.groupPayloads(ctx, jobID, true)
}

func (s *Service) groupPayloads(ctx context.Context, jobID int64, similar bool) ([]*models.DuplicateGroup, error) {
	files, err := s.store.Files().GetJobFiles(ctx, jobID)
	if err != nil {
		return nil, err
	}

	byGroup := make(map[string][]*models.File)
	var order []string
	for _, f := range files {
		if f.Discarded {
			continue
		}
		id := f.ExactGroupID
		if similar {
			id = f.SimilarGroupID
		}
		if id == nil {
			continue
		}
		if _, ok := byGroup[*id]; !ok {
			order = append(order, *id)
		}
		byGroup[*id] = append(byGroup[*id], f)
	}

	groups := make([]*models.DuplicateGroup, 0, len(order))
	for _, id := range order {
		members := byGroup[id]
		if len(members) < 2 {
			continue
		}

		group := &models.DuplicateGroup{GroupID: id, Files: members}
		if similar {
			if members[0].SimilarGroupConfidence != nil {
				group.Confidence = *members[0].SimilarGroupConfidence
			}
			group.GroupType = members[0].SimilarGroupType
		} else if members[0].ExactGroupConfidence != nil {
			group.Confidence = *members[0].ExactGroupConfidence
		}

		if recommended := duplicates.RecommendKeep(members); recommended != nil {
			group.RecommendedID = recommended.ID
		}
		for _, m := range members {
			group.Quality = append(group.Quality, models.FileQuality{
				FileID:     m.ID,
				Megapixels: duplicates.Megapixels(m),
				SizeBytes:  m.SizeBytes,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// -----------------------------------------------------------------------
// Group Handler - Exact and similar group resolution endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/review"
)

// GroupHandler serves the duplicate-group resolution endpoints.
type GroupHandler struct {
	review *review.Service
	logger arbor.ILogger
}

// NewGroupHandler creates the group handler.
func NewGroupHandler(reviewService *review.Service, logger arbor.ILogger) *GroupHandler {
	return &GroupHandler{review: reviewService, logger: logger}
}

// KeepAllDuplicatesHandler handles POST /api/duplicates/:id/keep-all:
// dissolve an exact group keeping every member.
func (h *GroupHandler) KeepAllDuplicatesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	groupID := PathSegment("/api/duplicates/", r.URL.Path)
	if groupID == "" {
		WriteError(w, http.StatusBadRequest, "missing group id")
		return
	}

	if err := h.review.KeepAllDuplicates(r.Context(), groupID); err != nil {
		if errors.Is(err, review.ErrGroupNotFound) {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved", "group_id": groupID})
}

// resolveRequest is the POST /api/similar-groups/:id/resolve payload.
type resolveRequest struct {
	KeepIDs []int64 `json:"keep_ids" validate:"required,min=1"`
}

// SimilarGroupHandler dispatches POST /api/similar-groups/:id/resolve and
// POST /api/similar-groups/:id/keep-all.
func (h *GroupHandler) SimilarGroupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	groupID := PathSegment("/api/similar-groups/", r.URL.Path)
	if groupID == "" {
		WriteError(w, http.StatusBadRequest, "missing group id")
		return
	}

	switch {
	case hasSuffixSegment(r.URL.Path, "resolve"):
		var req resolveRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.review.ResolveSimilarGroup(r.Context(), groupID, req.KeepIDs); err != nil {
			switch {
			case errors.Is(err, review.ErrGroupNotFound):
				WriteError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, review.ErrNothingToKeep):
				WriteError(w, http.StatusBadRequest, err.Error())
			default:
				WriteServiceError(w, err)
			}
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved", "group_id": groupID})

	case hasSuffixSegment(r.URL.Path, "keep-all"):
		if err := h.review.KeepAllSimilar(r.Context(), groupID); err != nil {
			if errors.Is(err, review.ErrGroupNotFound) {
				WriteError(w, http.StatusNotFound, err.Error())
				return
			}
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "resolved", "group_id": groupID})

	default:
		WriteError(w, http.StatusNotFound, "unknown group operation")
	}
}

// hasSuffixSegment reports whether the path's final segment equals name.
func hasSuffixSegment(path, name string) bool {
	if len(path) < len(name)+1 {
		return false
	}
	return path[len(path)-len(name)-1:] == "/"+name
}

// -----------------------------------------------------------------------
// File Handler - Per-file detail, review, discard, tag, and bulk endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/confidence"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/review"
)

// FileHandler serves the per-file API.
type FileHandler struct {
	store      interfaces.StorageManager
	review     *review.Service
	confidence *confidence.Engine
	logger     arbor.ILogger
}

// NewFileHandler creates the file handler.
func NewFileHandler(store interfaces.StorageManager, reviewService *review.Service, confidenceEngine *confidence.Engine, logger arbor.ILogger) *FileHandler {
	return &FileHandler{
		store:      store,
		review:     reviewService,
		confidence: confidenceEngine,
		logger:     logger,
	}
}

// GetHandler handles GET /api/files/:id: the file plus its raw timestamp
// candidates and the curated options the review UI offers.
func (h *FileHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.store.Files().GetFile(r.Context(), fileID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	tags, err := h.store.Tags().TagsForFile(r.Context(), fileID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"file":              file,
		"tags":              tags,
		"timestamp_options": h.confidence.Options(file.TimestampCandidates),
	})
}

// ThumbnailHandler handles GET /api/files/:id/thumbnail, streaming the
// generated preview image.
func (h *FileHandler) ThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.store.Files().GetFile(r.Context(), fileID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if file.ThumbnailPath == nil {
		WriteError(w, http.StatusNotFound, "no thumbnail for file")
		return
	}
	if _, err := os.Stat(*file.ThumbnailPath); err != nil {
		WriteError(w, http.StatusNotFound, "thumbnail missing on disk")
		return
	}
	http.ServeFile(w, r, *file.ThumbnailPath)
}

// reviewRequest is the POST /api/files/:id/review payload.
type reviewRequest struct {
	Timestamp string `json:"timestamp" validate:"required"`
	Source    string `json:"source"`
}

// ReviewHandler handles POST and DELETE /api/files/:id/review: confirm a
// timestamp or clear the confirmation.
func (h *FileHandler) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req reviewRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		instant, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "timestamp must be RFC 3339")
			return
		}

		file, err := h.review.ConfirmTimestamp(r.Context(), fileID, instant, req.Source)
		if err != nil {
			if errors.Is(err, review.ErrFileDiscarded) {
				WriteError(w, http.StatusConflict, err.Error())
				return
			}
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, file)

	case http.MethodDelete:
		file, err := h.review.Unreview(r.Context(), fileID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, file)

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// DiscardHandler handles POST and DELETE /api/files/:id/discard.
func (h *FileHandler) DiscardHandler(w http.ResponseWriter, r *http.Request) {
	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		file, err := h.review.Discard(r.Context(), fileID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, file)

	case http.MethodDelete:
		file, err := h.review.Undiscard(r.Context(), fileID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, file)

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// tagsRequest is the POST /api/files/:id/tags payload.
type tagsRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,dive,required"`
}

// TagsHandler handles POST /api/files/:id/tags and
// DELETE /api/files/:id/tags/:name.
func (h *FileHandler) TagsHandler(w http.ResponseWriter, r *http.Request) {
	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req tagsRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		tags, err := h.review.AddTags(r.Context(), fileID, req.Tags)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})

	case http.MethodDelete:
		// Tag name is the segment after /tags/.
		idx := strings.Index(r.URL.Path, "/tags/")
		if idx < 0 {
			WriteError(w, http.StatusBadRequest, "missing tag name")
			return
		}
		name := strings.TrimPrefix(r.URL.Path[idx:], "/tags/")
		if name == "" {
			WriteError(w, http.StatusBadRequest, "missing tag name")
			return
		}
		tags, err := h.review.RemoveTag(r.Context(), fileID, name)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// DecisionsHandler handles GET /api/files/:id/decisions, the audit trail
// for one file.
func (h *FileHandler) DecisionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fileID, err := PathID("/api/files/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := QueryInt(r, "limit", 50)
	decisions, err := h.store.Decisions().ListDecisions(r.Context(), fileID, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

// bulkIDsRequest is the shared payload of the id-set bulk endpoints.
type bulkIDsRequest struct {
	FileIDs []int64 `json:"file_ids" validate:"required,min=1"`
}

// bulkTagsRequest is the POST /api/files/bulk/tags payload.
type bulkTagsRequest struct {
	FileIDs []int64  `json:"file_ids" validate:"required,min=1"`
	Tags    []string `json:"tags" validate:"required,min=1,dive,required"`
}

// BulkHandler dispatches POST /api/files/bulk/:operation.
func (h *FileHandler) BulkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	operation := PathSegment("/api/files/bulk/", r.URL.Path)

	if operation == "tags" {
		var req bulkTagsRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		affected, err := h.review.BulkAddTags(r.Context(), req.FileIDs, req.Tags)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"affected": affected})
		return
	}

	var req bulkIDsRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var affected int
	var err error
	switch operation {
	case "discard":
		affected, err = h.review.BulkDiscard(r.Context(), req.FileIDs)
	case "undiscard":
		affected, err = h.review.BulkUndiscard(r.Context(), req.FileIDs)
	case "not-duplicate":
		affected, err = h.review.BulkKeepDuplicates(r.Context(), req.FileIDs)
	case "not-similar":
		affected, err = h.review.BulkKeepSimilar(r.Context(), req.FileIDs)
	default:
		WriteValidationError(w, "unknown bulk operation", "allowed_operations",
			[]string{"tags", "discard", "undiscard", "not-duplicate", "not-similar"})
		return
	}
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"affected": affected})
}

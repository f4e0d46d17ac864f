// -----------------------------------------------------------------------
// Import Handler - Upload and server-path ingestion endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/ingest"
)

// maxUploadMemory bounds the multipart parse buffer; larger parts spill
// to temp files.
const maxUploadMemory = 64 << 20

// ImportHandler serves the ingestion endpoints.
type ImportHandler struct {
	ingest *ingest.Service
	logger arbor.ILogger
}

// NewImportHandler creates the import handler.
func NewImportHandler(ingestService *ingest.Service, logger arbor.ILogger) *ImportHandler {
	return &ImportHandler{ingest: ingestService, logger: logger}
}

// UploadHandler handles POST /upload: multipart files[] plus an optional
// timestamps field carrying the originals' mtimes as a JSON array of
// ms-epoch values.
func (h *ImportHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	uploads := r.MultipartForm.File["files[]"]
	if len(uploads) == 0 {
		uploads = r.MultipartForm.File["files"]
	}
	if len(uploads) == 0 {
		WriteError(w, http.StatusBadRequest, "no files in request")
		return
	}

	var mtimes []int64
	if raw := r.FormValue("timestamps"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &mtimes); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid timestamps field: "+err.Error())
			return
		}
	}

	job, err := h.ingest.ImportUpload(r.Context(), uploads, mtimes)
	if err != nil {
		if errors.Is(err, ingest.ErrNoFiles) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.ID,
		"file_count": job.ProgressTotal,
		"status":     "queued",
	})
}

// importPathRequest is the POST /import-path payload.
type importPathRequest struct {
	Path string `json:"path" validate:"required"`
}

// ImportPathHandler handles POST /import-path: recursive media scan of
// an absolute server-side directory.
func (h *ImportHandler) ImportPathHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req importPathRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !filepath.IsAbs(req.Path) {
		WriteError(w, http.StatusBadRequest, "path must be absolute")
		return
	}

	job, err := h.ingest.ImportPath(r.Context(), req.Path)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrPathNotDirectory), errors.Is(err, ingest.ErrNoFiles):
			WriteError(w, http.StatusBadRequest, err.Error())
		default:
			WriteServiceError(w, err)
		}
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.ID,
		"file_count": job.ProgressTotal,
		"status":     "queued",
	})
}

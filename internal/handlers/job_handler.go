// -----------------------------------------------------------------------
// Job Handler - Job status, control, listings, and lifecycle endpoints
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/ingest"
	"github.com/ternarybob/mediaparser/internal/interfaces"
	"github.com/ternarybob/mediaparser/internal/models"
	"github.com/ternarybob/mediaparser/internal/review"
)

// JobHandler serves the per-job API.
type JobHandler struct {
	store  interfaces.StorageManager
	review *review.Service
	ingest *ingest.Service
	queue  interfaces.QueueManager
	logger arbor.ILogger
}

// NewJobHandler creates the job handler.
func NewJobHandler(store interfaces.StorageManager, reviewService *review.Service, ingestService *ingest.Service, queue interfaces.QueueManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		store:  store,
		review: reviewService,
		ingest: ingestService,
		queue:  queue,
		logger: logger,
	}
}

// ListHandler handles GET /api/jobs.
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	limit := QueryInt(r, "limit", 50)
	jobs, err := h.store.Jobs().ListJobs(r.Context(), limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// GetHandler handles GET /api/jobs/:id.
func (h *JobHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.store.Jobs().GetJob(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// CurrentHandler handles GET /api/current-job: the most recent job still
// in flight, or 204 when the system is idle.
func (h *JobHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.store.Jobs().GetCurrentJob(r.Context())
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// controlRequest is the POST /api/jobs/:id/control payload.
type controlRequest struct {
	Action string `json:"action" validate:"required,oneof=pause cancel resume"`
}

// ControlHandler handles POST /api/jobs/:id/control. Illegal transitions
// come back as 400 with the list of states the action is legal from.
func (h *JobHandler) ControlHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req controlRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.review.ControlJob(r.Context(), jobID, models.ControlAction(req.Action), h.queue)
	if err != nil {
		var transition *review.TransitionError
		if errors.As(err, &transition) {
			WriteValidationError(w, transition.Error(), "allowed_states", transition.AllowedStates())
			return
		}
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// FilesHandler handles GET /api/jobs/:id/files with mode, confidence,
// tag, sort, order, offset, and limit query parameters.
func (h *JobHandler) FilesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	opts := &interfaces.FileListOptions{
		Mode:       q.Get("mode"),
		Confidence: q.Get("confidence"),
		Tag:        q.Get("tag"),
		Sort:       q.Get("sort"),
		Order:      q.Get("order"),
		Offset:     QueryInt(r, "offset", 0),
		Limit:      QueryInt(r, "limit", 100),
	}

	if opts.Confidence != "" {
		if _, err := models.ParseConfidence(opts.Confidence); err != nil {
			WriteValidationError(w, err.Error(), "allowed_values", []string{"high", "medium", "low", "none"})
			return
		}
	}

	result, err := h.store.Files().ListFiles(r.Context(), jobID, opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// SummaryHandler handles GET /api/jobs/:id/summary.
func (h *JobHandler) SummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.store.Files().GetSummary(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

// ProgressHandler handles GET /api/jobs/:id/progress: the lightweight
// payload the UI polls between websocket pushes, with percent, elapsed,
// and a naive rate-based ETA.
func (h *JobHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.store.Jobs().GetJob(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	payload := map[string]interface{}{
		"job_id":           job.ID,
		"status":           job.Status,
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"percent":          job.ProgressPercent(),
		"error_count":      job.ErrorCount,
		"current_filename": job.CurrentFilename,
	}

	if job.StartedAt != nil {
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
		}
		elapsed := end.Sub(*job.StartedAt)
		payload["elapsed_seconds"] = int(elapsed.Seconds())

		if job.Status == models.JobStatusRunning && job.ProgressCurrent > 0 {
			perFile := elapsed / time.Duration(job.ProgressCurrent)
			remaining := time.Duration(job.ProgressTotal-job.ProgressCurrent) * perFile
			payload["eta_seconds"] = int(remaining.Seconds())
		}
	}

	WriteJSON(w, http.StatusOK, payload)
}

// DuplicatesHandler handles GET /api/jobs/:id/duplicates.
func (h *JobHandler) DuplicatesHandler(w http.ResponseWriter, r *http.Request) {
	h.groupsHandler(w, r, h.review.ExactGroups)
}

// SimilarGroupsHandler handles GET /api/jobs/:id/similar-groups.
func (h *JobHandler) SimilarGroupsHandler(w http.ResponseWriter, r *http.Request) {
	h.groupsHandler(w, r, h.review.SimilarGroups)
}

func (h *JobHandler) groupsHandler(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, jobID int64) ([]*models.DuplicateGroup, error)) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	groups, err := load(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"groups": groups, "count": len(groups)})
}

// exportRequest is the POST /api/jobs/:id/export payload.
type exportRequest struct {
	Force bool `json:"force"`
}

// ExportHandler handles POST /api/jobs/:id/export: creates and enqueues
// an export job over the import job's surviving files. Unresolved exact
// duplicate groups block the export unless force is set.
func (h *JobHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req exportRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	job, err := h.ingest.CreateExport(r.Context(), jobID, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrUnresolvedDuplicates):
			WriteError(w, http.StatusConflict, err.Error())
		case errors.Is(err, ingest.ErrJobNotFinished), errors.Is(err, ingest.ErrNoFiles):
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

// finalizeRequest is the POST /api/jobs/:id/finalize payload.
type finalizeRequest struct {
	CleanWorkingFiles bool `json:"clean_working_files"`
	DeleteSources     bool `json:"delete_sources"`
	ClearDatabase     bool `json:"clear_database"`
}

// FinalizeHandler handles POST /api/jobs/:id/finalize.
func (h *JobHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req finalizeRequest
	if r.ContentLength > 0 {
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	opts := ingest.FinalizeOptions{
		CleanWorkingFiles: req.CleanWorkingFiles,
		DeleteSources:     req.DeleteSources,
		ClearDatabase:     req.ClearDatabase,
	}
	if err := h.ingest.Finalize(r.Context(), jobID, opts); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

// AutoConfirmHandler handles POST /api/jobs/:id/auto-confirm: confirms
// every HIGH-confidence unreviewed file using its detected timestamp.
func (h *JobHandler) AutoConfirmHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	confirmed, err := h.review.AutoConfirmHigh(r.Context(), jobID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"confirmed": confirmed})
}

// BulkReviewHandler handles POST /api/jobs/:id/bulk-review: one action
// applied to a scoped file set within the job.
func (h *JobHandler) BulkReviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	jobID, err := PathID("/api/jobs/", r.URL.Path)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Scope      string  `json:"scope" validate:"required,oneof=selection confidence filtered"`
		Action     string  `json:"action" validate:"required,oneof=confirm discard"`
		FileIDs    []int64 `json:"file_ids"`
		Confidence string  `json:"confidence"`
		Mode       string  `json:"mode"`
		Tag        string  `json:"tag"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	bulkReq := &review.BulkReviewRequest{
		JobID:   jobID,
		Scope:   req.Scope,
		Action:  req.Action,
		FileIDs: req.FileIDs,
	}
	if req.Confidence != "" {
		level, err := models.ParseConfidence(req.Confidence)
		if err != nil {
			WriteValidationError(w, err.Error(), "allowed_values", []string{"high", "medium", "low", "none"})
			return
		}
		bulkReq.Confidence = level
	}
	if req.Scope == review.ScopeFiltered {
		bulkReq.Filter = &interfaces.FileListOptions{Mode: req.Mode, Confidence: req.Confidence, Tag: req.Tag}
	}

	affected, err := h.review.BulkReview(r.Context(), bulkReq)
	if err != nil {
		switch {
		case errors.Is(err, review.ErrUnknownScope), errors.Is(err, review.ErrUnknownAction):
			WriteError(w, http.StatusBadRequest, err.Error())
		default:
			WriteServiceError(w, err)
		}
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"affected": affected})
}

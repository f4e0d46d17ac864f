// -----------------------------------------------------------------------
// Routes - HTTP route table and per-resource sub-routing
// -----------------------------------------------------------------------

package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Ingestion
	mux.HandleFunc("/upload", s.app.ImportHandler.UploadHandler)
	mux.HandleFunc("/import-path", s.app.ImportHandler.ImportPathHandler)

	// API routes - Jobs
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /{id} and subpaths
	mux.HandleFunc("/api/current-job", s.app.JobHandler.CurrentHandler)

	// API routes - Files
	mux.HandleFunc("/api/files/bulk/", s.app.FileHandler.BulkHandler)
	mux.HandleFunc("/api/files/", s.handleFileRoutes) // /{id} and subpaths

	// API routes - Groups
	mux.HandleFunc("/api/duplicates/", s.handleDuplicateRoutes)
	mux.HandleFunc("/api/similar-groups/", s.app.GroupHandler.SimilarGroupHandler)

	// API routes - Settings and tags
	mux.HandleFunc("/api/settings", s.app.SettingsHandler.SettingsHandler)
	mux.HandleFunc("/api/tags", s.app.SettingsHandler.TagsHandler)

	// API routes - System
	mux.HandleFunc("/api/worker-health", s.app.SettingsHandler.WorkerHealthHandler)
	mux.HandleFunc("/api/version", s.app.SettingsHandler.VersionHandler)
	mux.HandleFunc("/health", s.app.SettingsHandler.HealthHandler)

	return mux
}

// handleJobRoutes routes /api/jobs/{id} and its subpaths.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/control"):
		s.app.JobHandler.ControlHandler(w, r)
	case strings.HasSuffix(path, "/files"):
		s.app.JobHandler.FilesHandler(w, r)
	case strings.HasSuffix(path, "/duplicates"):
		s.app.JobHandler.DuplicatesHandler(w, r)
	case strings.HasSuffix(path, "/similar-groups"):
		s.app.JobHandler.SimilarGroupsHandler(w, r)
	case strings.HasSuffix(path, "/summary"):
		s.app.JobHandler.SummaryHandler(w, r)
	case strings.HasSuffix(path, "/progress"):
		s.app.JobHandler.ProgressHandler(w, r)
	case strings.HasSuffix(path, "/export"):
		s.app.JobHandler.ExportHandler(w, r)
	case strings.HasSuffix(path, "/finalize"):
		s.app.JobHandler.FinalizeHandler(w, r)
	case strings.HasSuffix(path, "/auto-confirm"):
		s.app.JobHandler.AutoConfirmHandler(w, r)
	case strings.HasSuffix(path, "/bulk-review"):
		s.app.JobHandler.BulkReviewHandler(w, r)
	default:
		// /api/jobs/{id}
		s.app.JobHandler.GetHandler(w, r)
	}
}

// handleFileRoutes routes /api/files/{id} and its subpaths.
func (s *Server) handleFileRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasSuffix(path, "/review"):
		s.app.FileHandler.ReviewHandler(w, r)
	case strings.HasSuffix(path, "/discard"):
		s.app.FileHandler.DiscardHandler(w, r)
	case strings.HasSuffix(path, "/thumbnail"):
		s.app.FileHandler.ThumbnailHandler(w, r)
	case strings.HasSuffix(path, "/decisions"):
		s.app.FileHandler.DecisionsHandler(w, r)
	case strings.Contains(path, "/tags"):
		// POST /{id}/tags and DELETE /{id}/tags/{name}
		s.app.FileHandler.TagsHandler(w, r)
	default:
		// /api/files/{id}
		s.app.FileHandler.GetHandler(w, r)
	}
}

// handleDuplicateRoutes routes /api/duplicates/{group}/keep-all.
func (s *Server) handleDuplicateRoutes(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/keep-all") {
		s.app.GroupHandler.KeepAllDuplicatesHandler(w, r)
		return
	}
	http.Error(w, "Not found", http.StatusNotFound)
}

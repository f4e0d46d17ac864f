// -----------------------------------------------------------------------
// Settings Handler - Runtime settings, tags, health, and version
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/mediaparser/internal/common"
	"github.com/ternarybob/mediaparser/internal/interfaces"
)

// workerHealthyWindow is how recent the worker heartbeat must be for the
// worker to count as alive.
const workerHealthyWindow = 90 * time.Second

// SettingsHandler serves runtime settings and the small utility endpoints.
type SettingsHandler struct {
	store  interfaces.StorageManager
	config *common.Config
	logger arbor.ILogger
}

// NewSettingsHandler creates the settings handler.
func NewSettingsHandler(store interfaces.StorageManager, config *common.Config, logger arbor.ILogger) *SettingsHandler {
	return &SettingsHandler{store: store, config: config, logger: logger}
}

// settingsPayload is the GET response and POST request shape. Unset
// fields fall back to the static config.
type settingsPayload struct {
	OutputDir string `json:"output_dir"`
	Timezone  string `json:"timezone"`
}

// SettingsHandler handles GET and POST /api/settings. Stored settings
// override the config file; the POST validates the timezone against the
// IANA database and the output directory against the filesystem.
func (h *SettingsHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		payload := settingsPayload{
			OutputDir: h.config.Storage.OutputDir,
			Timezone:  h.config.Processing.Timezone,
		}
		if v, err := h.store.Settings().GetSetting(r.Context(), interfaces.SettingOutputDir); err == nil && v != "" {
			payload.OutputDir = v
		}
		if v, err := h.store.Settings().GetSetting(r.Context(), interfaces.SettingTimezone); err == nil && v != "" {
			payload.Timezone = v
		}
		WriteJSON(w, http.StatusOK, payload)

	case http.MethodPost:
		var req settingsPayload
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		if req.Timezone != "" {
			if _, err := time.LoadLocation(req.Timezone); err != nil {
				WriteError(w, http.StatusBadRequest, "unknown timezone: "+req.Timezone)
				return
			}
			if err := h.store.Settings().SetSetting(r.Context(), interfaces.SettingTimezone, req.Timezone); err != nil {
				WriteServiceError(w, err)
				return
			}
		}
		if req.OutputDir != "" {
			info, err := os.Stat(req.OutputDir)
			if err != nil || !info.IsDir() {
				WriteError(w, http.StatusBadRequest, "output_dir is not an existing directory")
				return
			}
			if err := h.store.Settings().SetSetting(r.Context(), interfaces.SettingOutputDir, req.OutputDir); err != nil {
				WriteServiceError(w, err)
				return
			}
		}

		h.logger.Info().
			Str("output_dir", req.OutputDir).
			Str("timezone", req.Timezone).
			Msg("Settings updated")
		WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// TagsHandler handles GET /api/tags: every known tag with usage counts.
func (h *SettingsHandler) TagsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	tags, err := h.store.Tags().ListTags(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	if limit := QueryInt(r, "limit", 0); limit > 0 && limit < len(tags) {
		tags = tags[:limit]
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tags": tags})
}

// WorkerHealthHandler handles GET /api/worker-health: reports whether
// the worker process's heartbeat is recent.
func (h *SettingsHandler) WorkerHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	raw, err := h.store.Settings().GetSetting(r.Context(), interfaces.SettingWorkerHeartbeat)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteJSON(w, http.StatusOK, map[string]interface{}{"healthy": false, "last_heartbeat": nil})
			return
		}
		WriteServiceError(w, err)
		return
	}

	beat, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]interface{}{"healthy": false, "last_heartbeat": nil})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"healthy":        time.Since(beat) <= workerHealthyWindow,
		"last_heartbeat": beat.Format(time.RFC3339),
	})
}

// HealthHandler handles GET /health.
func (h *SettingsHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "mediaparser",
		"version": common.GetVersion(),
	})
}

// VersionHandler handles GET /api/version.
func (h *SettingsHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.Build,
		"commit":  common.GitCommit,
	})
}

// -----------------------------------------------------------------------
// Handler Helpers - JSON responses, path parsing, request decoding
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

// validate checks tagged request payloads before they reach a service.
var validate = validator.New()

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteValidationError writes a 400 carrying the allowed values for the
// offending field.
func WriteValidationError(w http.ResponseWriter, message, allowedKey string, allowed []string) {
	WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
		"status":   "error",
		"error":    message,
		allowedKey: allowed,
	})
}

// WriteServiceError converts a service error to the right status class:
// unknown ids become 404, everything else 500. Validation errors are the
// caller's job since they carry allowed_* payloads.
func WriteServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, interfaces.ErrNotFound) {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// DecodeJSON decodes and validates a request body into dst.
func DecodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// RequireMethod rejects requests using the wrong verb.
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// PathID extracts the numeric id segment following prefix, ignoring any
// trailing segments: PathID("/api/jobs/", "/api/jobs/7/files") == 7.
func PathID(prefix, path string) (int64, error) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path || rest == "" {
		return 0, fmt.Errorf("missing id in path %s", path)
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", rest)
	}
	return id, nil
}

// PathSegment extracts the string segment following prefix.
func PathSegment(prefix, path string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == path {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// QueryInt reads an integer query parameter with a default.
func QueryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

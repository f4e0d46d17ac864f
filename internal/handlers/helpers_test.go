package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/mediaparser/internal/interfaces"
)

func TestPathID(t *testing.T) {
	id, err := PathID("/api/jobs/", "/api/jobs/7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = PathID("/api/jobs/", "/api/jobs/42/files")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = PathID("/api/jobs/", "/api/jobs/")
	assert.Error(t, err)

	_, err = PathID("/api/jobs/", "/api/jobs/abc")
	assert.Error(t, err)

	_, err = PathID("/api/jobs/", "/elsewhere/7")
	assert.Error(t, err)
}

func TestPathSegment(t *testing.T) {
	assert.Equal(t, "confirm", PathSegment("/api/files/bulk/", "/api/files/bulk/confirm"))
	assert.Equal(t, "discard", PathSegment("/api/files/bulk/", "/api/files/bulk/discard/extra"))
	assert.Equal(t, "", PathSegment("/api/files/bulk/", "/other"))
}

func TestQueryInt(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/jobs?limit=25&bad=x", nil)
	assert.Equal(t, 25, QueryInt(r, "limit", 50))
	assert.Equal(t, 50, QueryInt(r, "missing", 50))
	assert.Equal(t, 50, QueryInt(r, "bad", 50))
}

func TestWriteServiceError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteServiceError(w, interfaces.ErrNotFound)
	assert.Equal(t, 404, w.Code)

	w = httptest.NewRecorder()
	WriteServiceError(w, assert.AnError)
	assert.Equal(t, 500, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		Action string `json:"action" validate:"required,oneof=pause cancel resume"`
	}

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"action":"pause"}`))
	var p payload
	require.NoError(t, DecodeJSON(r, &p))
	assert.Equal(t, "pause", p.Action)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"action":"explode"}`))
	assert.Error(t, DecodeJSON(r, &payload{}))

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{not json`))
	assert.Error(t, DecodeJSON(r, &payload{}))
}

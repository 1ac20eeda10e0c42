package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/models"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	cfg := config.NewConfigWithCustomDirs(t.TempDir(), t.TempDir())
	require.NoError(t, cfg.EnsureDirectories())

	registry := models.NewRegistry()
	require.NoError(t, registry.Register(&models.ModelSpec{
		ID:          "heartmula-3b",
		SourceID:    "heartmula/heartmula-3b",
		DisplayName: "HeartMuLa 3B",
		Family:      "heartmula",
	}))
	require.NoError(t, registry.Register(&models.ModelSpec{
		ID:       "heartcodec",
		SourceID: "heartmula/heartcodec",
		Family:   "heartcodec",
	}))

	return NewHandler(cfg, registry, device.NewManager(), nil, nil, nil,
		"test", "now", "abc1234")
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp api.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestHealthRejectsPost(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestVersion(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Version(rec, httptest.NewRequest(http.MethodGet, "/api/version", nil))

	var resp api.VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "abc1234", resp.GitCommit)
}

func TestListModelsHidesUndownloadedByDefault(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ListModels(rec, httptest.NewRequest(http.MethodGet, "/api/models/list", nil))

	var resp api.ListModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Models)
	assert.Equal(t, 2, resp.TotalModels)
}

func TestListModelsAll(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ListModels(rec, httptest.NewRequest(http.MethodGet, "/api/models/list?all=true", nil))

	var resp api.ListModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Models, 2)
	for _, m := range resp.Models {
		assert.Equal(t, api.ModelStatusNotDownloaded, m.Status)
	}
}

func TestListModelsFamilyFilter(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ListModels(rec, httptest.NewRequest(http.MethodGet,
		"/api/models/list?all=true&family=heartcodec", nil))

	var resp api.ListModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "heartcodec", resp.Models[0].Name)
}

func TestListModelsSeesDownloadedWeights(t *testing.T) {
	h := newTestHandler(t)

	// A revision directory with a completion marker counts as downloaded.
	dir := filepath.Join(h.cfg.Storage.GetModelsDir(), "heartmula-3b", "main")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"),
		[]byte("weights"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".downloaded"),
		[]byte("source=heartmula/heartmula-3b\n"), 0644))

	rec := httptest.NewRecorder()
	h.ListModels(rec, httptest.NewRequest(http.MethodGet, "/api/models/list", nil))

	var resp api.ListModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 1)
	assert.Equal(t, "heartmula-3b", resp.Models[0].Name)
	assert.Equal(t, api.ModelStatusDownloaded, resp.Models[0].Status)
}

func TestShowModelNotFound(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ShowModel(rec, httptest.NewRequest(http.MethodGet, "/api/models/show?name=nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "nope")
}

func TestShowModelRequiresName(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.ShowModel(rec, httptest.NewRequest(http.MethodGet, "/api/models/show", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryWithoutStoreAnswersEmpty(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.BuildHistory(rec, httptest.NewRequest(http.MethodGet, "/api/history/builds", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp api.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Builds)
}

func TestQueryLimit(t *testing.T) {
	assert.Equal(t, defaultHistoryLimit,
		queryLimit(httptest.NewRequest(http.MethodGet, "/x", nil)))
	assert.Equal(t, 5,
		queryLimit(httptest.NewRequest(http.MethodGet, "/x?limit=5", nil)))
	assert.Equal(t, defaultHistoryLimit,
		queryLimit(httptest.NewRequest(http.MethodGet, "/x?limit=-1", nil)))
	assert.Equal(t, defaultHistoryLimit,
		queryLimit(httptest.NewRequest(http.MethodGet, "/x?limit=abc", nil)))
}

func TestWantsSSE(t *testing.T) {
	plain := httptest.NewRequest(http.MethodPost, "/x", nil)
	assert.False(t, wantsSSE(plain))

	sse := httptest.NewRequest(http.MethodPost, "/x", nil)
	sse.Header.Set("Accept", "text/event-stream")
	assert.True(t, wantsSSE(sse))
}

func TestSSEWriterFrames(t *testing.T) {
	rec := httptest.NewRecorder()

	s, err := newSSEWriter(rec)
	require.NoError(t, err)
	s.Status("building")
	s.End()

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.Contains(t, body, `data: {"type":"status","message":"building"}`)
	assert.Contains(t, body, `data: {"type":"end"}`)
}

// Package handlers implements the HTTP endpoints of the mula daemon.
//
// Handlers translate between the wire types in internal/api and the
// domain packages (models, build, runtime, device, history). Long-running
// operations (pull, build, start) stream progress to the client over
// Server-Sent Events; everything else is plain JSON.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/history"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
	"github.com/heartmula/mula/internal/runtime"
)

// Handler carries the daemon's shared dependencies for all endpoints.
type Handler struct {
	cfg            *config.Config
	registry       *models.Registry
	deviceManager  *device.Manager
	runtimeManager *runtime.Manager
	builder        *build.Builder
	historyStore   *history.Store
	version        string
	buildTime      string
	gitCommit      string
}

// NewHandler creates the handler set.
//
// historyStore may be nil; history endpoints then answer with empty
// lists. The other dependencies are required.
func NewHandler(
	cfg *config.Config,
	registry *models.Registry,
	deviceManager *device.Manager,
	runtimeManager *runtime.Manager,
	builder *build.Builder,
	historyStore *history.Store,
	version, buildTime, gitCommit string,
) *Handler {
	return &Handler{
		cfg:            cfg,
		registry:       registry,
		deviceManager:  deviceManager,
		runtimeManager: runtimeManager,
		builder:        builder,
		historyStore:   historyStore,
		version:        version,
		buildTime:      buildTime,
		gitCommit:      gitCommit,
	}
}

// WriteJSON writes a JSON response with the given status code.
func (h *Handler) WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response: %v", err)
	}
}

// WriteError writes a standard error response.
func (h *Handler) WriteError(w http.ResponseWriter, status int, message string) {
	h.WriteJSON(w, status, api.ErrorResponse{Error: message})
}

// Health reports the daemon's own health.
//
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

// Version reports the daemon build information.
//
// GET /api/version
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.WriteJSON(w, http.StatusOK, api.VersionResponse{
		Version:   h.version,
		BuildTime: h.buildTime,
		GitCommit: h.gitCommit,
	})
}

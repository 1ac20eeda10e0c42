package handlers

import (
	"net/http"
	"time"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
)

// ListModels returns the model registry enriched with local download
// state and the detected device types.
//
// GET /api/models/list?family=heartmula&all=true
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	family := r.URL.Query().Get("family")
	showAll := r.URL.Query().Get("all") == "true"
	modelsDir := h.cfg.Storage.GetModelsDir()

	specs := h.registry.List(family)
	apiModels := make([]api.Model, 0, len(specs))
	for _, spec := range specs {
		m := spec.APIModel()
		models.ApplyLocalState(&m, modelsDir)
		if !showAll && m.Status != api.ModelStatusDownloaded {
			continue
		}
		apiModels = append(apiModels, m)
	}

	h.WriteJSON(w, http.StatusOK, api.ListModelsResponse{
		Models:          apiModels,
		TotalModels:     h.registry.Count(),
		DetectedDevices: h.deviceManager.GetDetectedDeviceTypes(),
	})
}

// ListDownloadedModels returns the checkpoints present on disk,
// including ones the registry does not know about.
//
// GET /api/models/downloaded
func (h *Handler) ListDownloadedModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	locals, err := models.ScanLocalModels(h.cfg.Storage.GetModelsDir())
	if err != nil {
		logger.Warn("Failed to scan local models: %v", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to scan local models")
		return
	}

	downloaded := make([]api.DownloadedModel, 0, len(locals))
	for _, local := range locals {
		downloaded = append(downloaded, api.DownloadedModel{
			ID:         local.ID,
			Source:     local.SourceID,
			Revision:   local.Revision,
			Size:       local.Size,
			ModifiedAt: local.ModifiedAt.Format(time.RFC3339),
		})
	}

	h.WriteJSON(w, http.StatusOK, downloaded)
}

// ShowModel returns one model by ID or source repository.
//
// GET /api/models/show?name=heartmula-3b
func (h *Handler) ShowModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		h.WriteError(w, http.StatusBadRequest, "name parameter is required")
		return
	}

	spec := h.registry.Lookup(name)
	if spec == nil {
		h.WriteError(w, http.StatusNotFound, "model not found: "+name)
		return
	}

	m := spec.APIModel()
	models.ApplyLocalState(&m, h.cfg.Storage.GetModelsDir())
	h.WriteJSON(w, http.StatusOK, m)
}

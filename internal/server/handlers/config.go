package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
)

// GetConfig returns the daemon's effective configuration.
//
// GET /api/config/get
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"server": map[string]interface{}{
			"name": h.cfg.Server.Name,
			"host": h.cfg.Server.Host,
			"port": h.cfg.Server.Port,
		},
		"storage": map[string]string{
			"config_dir": h.cfg.Storage.ConfigDir,
			"data_dir":   h.cfg.Storage.DataDir,
			"models_dir": h.cfg.Storage.GetModelsDir(),
			"db_dir":     h.cfg.Storage.GetDBDir(),
		},
		"build": map[string]interface{}{
			"default_variant":  h.cfg.Build.DefaultVariant,
			"image_repository": h.cfg.Build.ImageRepository,
			"pin_base_images":  h.cfg.Build.PinBaseImages,
			"source_dir":       h.cfg.Build.SourceDir,
		},
	})
}

// ReloadConfig re-reads the catalog files and rebuilds instance tracking
// from Docker.
//
// POST /api/config/reload
//
// The variant catalog is read from disk on every use, so only the model
// catalog and the container state need explicit reloading here.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	modelsPath := filepath.Join(h.cfg.Storage.ConfigDir, config.ModelsFileName)
	if _, err := os.Stat(modelsPath); err == nil {
		if err := models.LoadAndRegisterModelsFromConfig(modelsPath); err != nil {
			logger.Warn("Model catalog reload failed: %v", err)
			h.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	h.runtimeManager.ReloadContainers(r.Context())

	logger.Info("Configuration reloaded")
	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

package server

import (
	"context"
	"os"
	"path/filepath"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
	"github.com/heartmula/mula/internal/runtime"
	cpudocker "github.com/heartmula/mula/internal/runtime/cpu-docker"
	cudadocker "github.com/heartmula/mula/internal/runtime/cuda-docker"

	// Registers the built-in HeartMuLa checkpoints.
	_ "github.com/heartmula/mula/internal/models/heartmula"
)

// InitializeModels loads the model catalog on top of the compiled-in
// registry. A missing catalog file is fine; the built-ins stand alone.
func InitializeModels(cfg *config.Config) *models.Registry {
	catalogPath := filepath.Join(cfg.Storage.ConfigDir, config.ModelsFileName)
	if _, err := os.Stat(catalogPath); err == nil {
		if err := models.LoadAndRegisterModelsFromConfig(catalogPath); err != nil {
			logger.Warn("Failed to load model catalog %s: %v", catalogPath, err)
		}
	}

	registry := models.GetDefaultRegistry()
	logger.Info("Model registry initialized with %d model(s)", registry.Count())
	return registry
}

// InitializeRuntimeManager creates the runtime manager and registers the
// runtimes the host can support.
//
// Registration is warn-and-continue: a host without Docker still serves
// the catalog and model endpoints, and a host without a GPU still runs
// cpu instances. The daemon only fails when the caller decides that zero
// runtimes is unacceptable.
func InitializeRuntimeManager(ctx context.Context, cfg *config.Config, hasGPU bool, serverName string) *runtime.Manager {
	manager := runtime.NewManager(cfg)

	registered := 0

	if hasGPU {
		if rt, err := cudadocker.NewRuntime(); err != nil {
			logger.Warn("CUDA runtime unavailable: %v", err)
		} else if err := manager.RegisterRuntime(rt); err != nil {
			logger.Warn("Failed to register CUDA runtime: %v", err)
		} else {
			registered++
		}
	} else {
		logger.Info("No supported GPU detected; skipping CUDA runtime")
	}

	if rt, err := cpudocker.NewRuntime(); err != nil {
		logger.Warn("CPU runtime unavailable: %v", err)
	} else if err := manager.RegisterRuntime(rt); err != nil {
		logger.Warn("Failed to register CPU runtime: %v", err)
	} else {
		registered++
	}

	if registered == 0 {
		logger.Warn("No runtimes registered; instance management is disabled (is Docker running?)")
	}

	manager.SetServerName(serverName)
	manager.LoadExistingContainers(ctx)
	manager.StartBackgroundTasks()

	return manager
}

// WatchCatalogs starts the fsnotify watcher that reloads catalogs when
// the YAML files under the config dir change. Returns a closer; a failed
// watcher is logged and ignored (reload stays available via the API).
func WatchCatalogs(cfg *config.Config, manager *runtime.Manager) func() {
	watcher, err := config.NewCatalogWatcher(cfg.Storage.ConfigDir, func() {
		catalogPath := filepath.Join(cfg.Storage.ConfigDir, config.ModelsFileName)
		if _, err := os.Stat(catalogPath); err == nil {
			if err := models.LoadAndRegisterModelsFromConfig(catalogPath); err != nil {
				logger.Warn("Catalog reload failed: %v", err)
			}
		}
	})
	if err != nil {
		logger.Warn("Catalog watcher unavailable: %v", err)
		return func() {}
	}
	return func() { _ = watcher.Close() }
}

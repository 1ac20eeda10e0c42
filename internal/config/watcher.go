package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/heartmula/mula/internal/logger"
)

// catalogReloadDebounce coalesces editor write bursts (truncate + write +
// chmod) into a single reload.
const catalogReloadDebounce = 500 * time.Millisecond

// CatalogWatcher watches the config directory's catalog files and invokes a
// callback when one of them changes.
//
// The watcher lets a running daemon pick up edits to variants.yaml,
// models.yaml and base_images.yaml without a restart, equivalent to hitting
// the config reload endpoint manually.
type CatalogWatcher struct {
	watcher  *fsnotify.Watcher
	onReload func()
	stopCh   chan struct{}
}

// NewCatalogWatcher starts watching the config directory for catalog
// changes.
//
// Parameters:
//   - configDir: Directory containing the catalog YAML files
//   - onReload: Called (debounced) after a catalog file changes
//
// Returns:
//   - Running watcher; call Close to stop it
//   - Error if the filesystem watcher cannot be created
func NewCatalogWatcher(configDir string, onReload func()) (*CatalogWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	if err := fsw.Add(configDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}

	cw := &CatalogWatcher{
		watcher:  fsw,
		onReload: onReload,
		stopCh:   make(chan struct{}),
	}

	go cw.loop()

	logger.Info("Watching %s for catalog changes", configDir)

	return cw, nil
}

// loop consumes filesystem events until Close is called.
func (cw *CatalogWatcher) loop() {
	var timer *time.Timer

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !isCatalogFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			logger.Debug("Catalog file changed: %s (%s)", event.Name, event.Op)

			// Debounce: editors emit several events per save.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(catalogReloadDebounce, cw.onReload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Config watcher error: %v", err)

		case <-cw.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isCatalogFile reports whether path names one of the watched catalogs.
func isCatalogFile(path string) bool {
	switch filepath.Base(path) {
	case VariantsFileName, ModelsFileName, BaseImagesFileName:
		return true
	}
	return false
}

// Close stops the watcher and releases its resources.
func (cw *CatalogWatcher) Close() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}

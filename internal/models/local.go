// Package models - local.go inspects the local checkpoint store.
//
// Checkpoints live under the models data directory as
// {modelID}/{revision}/..., with a completion marker written after a
// successful download. Only directories carrying the marker count as
// downloaded; anything else is a partial tree or an unrelated cache
// directory (the containerized service keeps its own HF cache next to the
// checkpoints).
package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heartmula/mula/internal/api"
)

const (
	// downloadedMarkerName marks a checkpoint directory as complete.
	downloadedMarkerName = ".downloaded"

	// lockFileName guards a checkpoint directory during download.
	lockFileName = ".download.lock"
)

// LocalModel describes one complete checkpoint found on disk.
type LocalModel struct {
	// ID is the internal checkpoint identifier (directory name).
	ID string

	// SourceID is the Hub repository the weights came from.
	SourceID string

	// Revision is the downloaded upstream revision.
	Revision string

	// Path is the checkpoint directory.
	Path string

	// Size is the total size of the checkpoint directory in bytes.
	Size int64

	// ModifiedAt is when the download completed.
	ModifiedAt time.Time
}

// LocalModelDir returns the directory a checkpoint revision is stored in.
func LocalModelDir(modelsDir, modelID, revision string) string {
	if revision == "" {
		revision = DefaultRevision
	}
	return filepath.Join(modelsDir, modelID, revision)
}

// IsModelDownloaded reports whether a complete checkpoint exists locally.
func IsModelDownloaded(modelsDir, modelID, revision string) bool {
	return hasMarker(LocalModelDir(modelsDir, modelID, revision))
}

// ScanLocalModels walks the models directory and returns all complete
// checkpoints, sorted by ID then revision.
//
// Directories without a completion marker are skipped, which excludes
// partial downloads and the service's own cache directories (hf/,
// inductor-cache/).
func ScanLocalModels(modelsDir string) ([]LocalModel, error) {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}

	var result []LocalModel
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		modelID := entry.Name()
		revisions, err := os.ReadDir(filepath.Join(modelsDir, modelID))
		if err != nil {
			continue
		}

		for _, rev := range revisions {
			if !rev.IsDir() {
				continue
			}

			dir := filepath.Join(modelsDir, modelID, rev.Name())
			if !hasMarker(dir) {
				continue
			}

			local := LocalModel{
				ID:       modelID,
				Revision: rev.Name(),
				Path:     dir,
			}

			if info, err := readMarker(dir); err == nil {
				local.SourceID = info["source"]
				if ts, err := time.Parse(time.RFC3339, info["downloaded_at"]); err == nil {
					local.ModifiedAt = ts
				}
			}
			if local.ModifiedAt.IsZero() {
				if stat, err := os.Stat(markerPath(dir)); err == nil {
					local.ModifiedAt = stat.ModTime()
				}
			}

			local.Size, _ = dirSize(dir)
			result = append(result, local)
		}
	}

	return result, nil
}

// FindLocalModel returns the newest complete local revision of a
// checkpoint, or nil when none exists.
func FindLocalModel(modelsDir, modelID string) (*LocalModel, error) {
	locals, err := ScanLocalModels(modelsDir)
	if err != nil {
		return nil, err
	}

	var best *LocalModel
	for i := range locals {
		if locals[i].ID != modelID {
			continue
		}
		if best == nil || locals[i].ModifiedAt.After(best.ModifiedAt) {
			best = &locals[i]
		}
	}
	return best, nil
}

// ApplyLocalState overlays the local download state onto a wire model.
//
// When a complete local revision exists, Status becomes downloaded and
// Size/ModifiedAt reflect the on-disk checkpoint instead of the registry
// estimate. A missing or partial download leaves the model untouched.
func ApplyLocalState(m *api.Model, modelsDir string) {
	local, err := FindLocalModel(modelsDir, m.Name)
	if err != nil || local == nil {
		return
	}

	m.Status = api.ModelStatusDownloaded
	m.Size = local.Size
	m.Revision = local.Revision
	m.ModifiedAt = local.ModifiedAt.Format(time.RFC3339)
}

// markerPath returns the completion marker path for a checkpoint directory.
func markerPath(modelDir string) string {
	return filepath.Join(modelDir, downloadedMarkerName)
}

// hasMarker reports whether the completion marker exists.
func hasMarker(modelDir string) bool {
	_, err := os.Stat(markerPath(modelDir))
	return err == nil
}

// writeMarker records a completed download.
//
// The marker is a small key=value file so the source and completion time
// survive without a database.
func writeMarker(modelDir, sourceID, revision string) error {
	content := fmt.Sprintf("source=%s\nrevision=%s\ndownloaded_at=%s\n",
		sourceID, revision, time.Now().Format(time.RFC3339))
	return os.WriteFile(markerPath(modelDir), []byte(content), 0644)
}

// readMarker parses the completion marker into a key/value map.
func readMarker(modelDir string) (map[string]string, error) {
	data, err := os.ReadFile(markerPath(modelDir))
	if err != nil {
		return nil, err
	}

	info := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, found := strings.Cut(line, "="); found {
			info[key] = value
		}
	}
	return info, nil
}

// dirSize sums the file sizes under a directory.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

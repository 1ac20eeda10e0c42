package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLocalModel(t *testing.T, modelsDir, modelID, revision, markerBody string) string {
	t.Helper()
	dir := filepath.Join(modelsDir, modelID, revision)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{}"), 0644))
	if markerBody != "" {
		require.NoError(t, os.WriteFile(markerPath(dir), []byte(markerBody), 0644))
	}
	return dir
}

func TestScanLocalModelsSkipsIncomplete(t *testing.T) {
	modelsDir := t.TempDir()

	writeLocalModel(t, modelsDir, "tiny", "main",
		"source=acme/tiny\nrevision=main\ndownloaded_at=2026-02-01T10:00:00Z\n")

	// Partial download: no marker.
	writeLocalModel(t, modelsDir, "partial", "main", "")

	// Service cache directory that is no checkpoint at all.
	require.NoError(t, os.MkdirAll(filepath.Join(modelsDir, "hf", "hub"), 0755))

	locals, err := ScanLocalModels(modelsDir)
	require.NoError(t, err)
	require.Len(t, locals, 1)
	assert.Equal(t, "tiny", locals[0].ID)
	assert.Equal(t, "acme/tiny", locals[0].SourceID)
	assert.Equal(t, "2026-02-01T10:00:00Z", locals[0].ModifiedAt.UTC().Format("2006-01-02T15:04:05Z"))
	assert.Greater(t, locals[0].Size, int64(0))
}

func TestScanLocalModelsMissingDir(t *testing.T) {
	locals, err := ScanLocalModels(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, locals)
}

func TestFindLocalModelPicksNewestRevision(t *testing.T) {
	modelsDir := t.TempDir()

	writeLocalModel(t, modelsDir, "tiny", "v1",
		"source=acme/tiny\nrevision=v1\ndownloaded_at=2026-01-01T00:00:00Z\n")
	writeLocalModel(t, modelsDir, "tiny", "v2",
		"source=acme/tiny\nrevision=v2\ndownloaded_at=2026-02-01T00:00:00Z\n")

	local, err := FindLocalModel(modelsDir, "tiny")
	require.NoError(t, err)
	require.NotNil(t, local)
	assert.Equal(t, "v2", local.Revision)

	missing, err := FindLocalModel(modelsDir, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMarkerRoundTrip(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, writeMarker(dir, "acme/tiny", "main"))
	require.True(t, hasMarker(dir))

	info, err := readMarker(dir)
	require.NoError(t, err)
	assert.Equal(t, "acme/tiny", info["source"])
	assert.Equal(t, "main", info["revision"])
	assert.NotEmpty(t, info["downloaded_at"])
}

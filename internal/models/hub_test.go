package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// newFakeHub serves a single repository "acme/tiny" at revision "main" with
// the given files. Paths listed in lfsPaths are advertised with their
// content SHA256, like LFS-tracked weight files on the real Hub.
func newFakeHub(t *testing.T, files map[string]string, lfsPaths ...string) *httptest.Server {
	t.Helper()

	lfs := make(map[string]bool, len(lfsPaths))
	for _, p := range lfsPaths {
		lfs[p] = true
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/models/acme/tiny/tree/main", func(w http.ResponseWriter, r *http.Request) {
		entries := []map[string]any{
			// A directory entry, which the client must skip.
			{"type": "directory", "path": "weights", "size": 0},
		}
		for path, content := range files {
			entry := map[string]any{"type": "file", "path": path, "size": len(content)}
			if lfs[path] {
				entry["lfs"] = map[string]any{"oid": sha256Hex(content), "size": len(content)}
			}
			entries = append(entries, entry)
		}
		json.NewEncoder(w).Encode(entries)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/acme/tiny/resolve/main/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		content, ok := files[strings.TrimPrefix(r.URL.Path, prefix)]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownloadModel(t *testing.T) {
	files := map[string]string{
		"config.json":               `{"model_type":"heartmula"}`,
		"weights/model.safetensors": strings.Repeat("w", 4096),
	}
	srv := newFakeHub(t, files, "weights/model.safetensors")

	cacheDir := t.TempDir()
	c := NewHubClientWithEndpoint(srv.URL)

	var reported []string
	progress := func(name string, _, _ int64) {
		reported = append(reported, name)
	}

	dir, err := c.DownloadModel(context.Background(), "acme/tiny", "tiny", "", cacheDir, progress)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cacheDir, "tiny", "main"), dir)

	for path, want := range files {
		got, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	assert.True(t, IsModelDownloaded(cacheDir, "tiny", "main"))
	assert.Contains(t, reported, "config.json")
	assert.Contains(t, reported, "✓ Verified weights/model.safetensors")

	// No stray lock or temp files after success.
	assert.NoFileExists(t, filepath.Join(dir, lockFileName))
	assert.NoFileExists(t, filepath.Join(dir, "weights", "model.safetensors.tmp"))

	locals, err := ScanLocalModels(cacheDir)
	require.NoError(t, err)
	require.Len(t, locals, 1)
	assert.Equal(t, "tiny", locals[0].ID)
	assert.Equal(t, "acme/tiny", locals[0].SourceID)
	assert.Equal(t, "main", locals[0].Revision)
	assert.Greater(t, locals[0].Size, int64(4096))
}

func TestDownloadModelSkipsCompleted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "must not be called", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "tiny", "main")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, writeMarker(dir, "acme/tiny", "main"))

	c := NewHubClientWithEndpoint(srv.URL)
	got, err := c.DownloadModel(context.Background(), "acme/tiny", "tiny", "main", cacheDir, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, got)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestDownloadModelLockHeld(t *testing.T) {
	srv := newFakeHub(t, map[string]string{"config.json": "{}"})

	cacheDir := t.TempDir()
	dir := filepath.Join(cacheDir, "tiny", "main")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), []byte("pid=1"), 0644))

	c := NewHubClientWithEndpoint(srv.URL)
	_, err := c.DownloadModel(context.Background(), "acme/tiny", "tiny", "main", cacheDir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestDownloadModelIntegrityFailure(t *testing.T) {
	content := strings.Repeat("x", 1024)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/acme/tiny/tree/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"type": "file", "path": "model.bin", "size": len(content),
				"lfs": map[string]any{"oid": sha256Hex("different content"), "size": len(content)},
			},
		})
	})
	mux.HandleFunc("/acme/tiny/resolve/main/model.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cacheDir := t.TempDir()
	c := NewHubClientWithEndpoint(srv.URL)

	_, err := c.DownloadModel(context.Background(), "acme/tiny", "tiny", "main", cacheDir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "integrity check failed")

	// The corrupted file is deleted and the tree is not marked complete.
	assert.NoFileExists(t, filepath.Join(cacheDir, "tiny", "main", "model.bin"))
	assert.False(t, IsModelDownloaded(cacheDir, "tiny", "main"))
}

func TestDownloadModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewHubClientWithEndpoint(srv.URL)
	_, err := c.DownloadModel(context.Background(), "acme/gone", "gone", "main", t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found on the Hub")
}

func TestNextPageLink(t *testing.T) {
	assert.Empty(t, nextPageLink(""))
	assert.Empty(t, nextPageLink(`<https://x/prev>; rel="prev"`))
	assert.Equal(t, "https://x/next", nextPageLink(`<https://x/next>; rel="next"`))
	assert.Equal(t, "https://x/next",
		nextPageLink(`<https://x/prev>; rel="prev", <https://x/next>; rel="next"`))
}

func TestResolveURLEscaping(t *testing.T) {
	c := NewHubClientWithEndpoint("https://hub.example")

	assert.Equal(t,
		"https://hub.example/acme/tiny/resolve/main/config.json",
		c.resolveURL("acme/tiny", "main", "config.json"))

	// Revision slashes are escaped, path separators are kept, spaces are
	// escaped inside segments.
	assert.Equal(t,
		"https://hub.example/acme/tiny/resolve/refs%2Fpr%2F1/sub%20dir/w.bin",
		c.resolveURL("acme/tiny", "refs/pr/1", "sub dir/w.bin"))
}

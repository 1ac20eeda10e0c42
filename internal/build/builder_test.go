package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/config"
)

type staticResolver struct{}

func (staticResolver) ResolveTag(image, tag string) (string, error) {
	return "sha256:1111111111111111111111111111111111111111111111111111111111111111", nil
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()

	dir := t.TempDir()
	cfg := config.NewConfigWithCustomDirs(dir, "")
	b := NewBuilder(cfg, nil)
	b.resolver = staticResolver{}
	return b
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "heartmula/runtime:cuda", ImageName("heartmula/runtime", "cuda", ""))
	assert.Equal(t, "heartmula/runtime:cuda-v2", ImageName("heartmula/runtime", "cuda", "v2"))
}

func TestBuildArgs(t *testing.T) {
	args := buildArgs("heartmula/runtime:cuda", "/data/build/cuda/Dockerfile", "/src", false)
	assert.Equal(t, []string{
		"build", "-t", "heartmula/runtime:cuda",
		"-f", "/data/build/cuda/Dockerfile", "/src",
	}, args)

	withNoCache := buildArgs("img:t", "df", "ctx", true)
	assert.Contains(t, withNoCache, "--no-cache")
	assert.Equal(t, "ctx", withNoCache[len(withNoCache)-1], "context dir stays last")
}

func TestPinnedDigests(t *testing.T) {
	content := []byte(`# syntax note
FROM node:20@sha256:aaaa AS frontend
RUN npm ci
FROM nvidia/cuda:12.4.1@sha256:bbbb
FROM busybox:latest
FROM alpine@sha256:aaaa
`)
	digests := pinnedDigests(content)
	assert.Equal(t, []string{"sha256:aaaa", "sha256:bbbb"}, digests)
}

func TestStageWritesDockerfileAndIgnore(t *testing.T) {
	b := newTestBuilder(t)

	path, err := b.stage("cuda", []byte("FROM scratch\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "FROM scratch\n", string(content))

	ignore, err := os.ReadFile(filepath.Join(filepath.Dir(path), dockerignoreName))
	require.NoError(t, err)
	assert.Contains(t, string(ignore), "node_modules")
	assert.Contains(t, string(ignore), "**/models")

	// Staged under the build dir, in a per-variant subdirectory.
	assert.Equal(t, filepath.Join(b.cfg.Storage.GetBuildDir(), "cuda", "Dockerfile"), path)
}

func TestRenderVariantUnknown(t *testing.T) {
	b := newTestBuilder(t)

	_, err := b.RenderVariant("tpu", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant not found: tpu")
}

func TestRenderVariantPinned(t *testing.T) {
	b := newTestBuilder(t)

	content, err := b.RenderVariant("cuda", true)
	require.NoError(t, err)

	rendered := string(content)
	assert.Contains(t, rendered, "node@sha256:", "frontend base pinned")
	assert.Contains(t, rendered, "nvidia/cuda@sha256:", "runtime base pinned")
	assert.NotContains(t, rendered, "node:20-bookworm-slim", "floating tag replaced")

	digests := pinnedDigests(content)
	require.Len(t, digests, 1, "both bases share the fake digest")
}

func TestContextDirPrecedence(t *testing.T) {
	b := newTestBuilder(t)

	b.cfg.Build.SourceDir = "/configured/src"
	assert.Equal(t, "/override/src", b.contextDir(Options{SourceDir: "/override/src"}))
	assert.Equal(t, "/configured/src", b.contextDir(Options{}))

	b.cfg.Build.SourceDir = ""
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, b.contextDir(Options{}))
}

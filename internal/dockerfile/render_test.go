package dockerfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/config"
)

func cudaSpec(t *testing.T) *config.VariantSpec {
	t.Helper()
	spec, err := config.GetDefaultVariantCatalog().Get("cuda")
	require.NoError(t, err)
	return spec
}

func TestRenderCudaVariant(t *testing.T) {
	out, err := Render(cudaSpec(t))
	require.NoError(t, err)
	content := string(out)

	// Two stages: frontend asset build, then the runtime image.
	assert.Contains(t, content, "FROM node:20-bookworm-slim AS frontend\n")
	assert.Contains(t, content, "RUN npm ci\n")
	assert.Contains(t, content, "RUN npm run build\n")
	assert.Contains(t, content, "FROM nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04\n")

	// Backend dependency install.
	assert.Contains(t, content, "COPY backend/requirements.txt /app/backend/requirements.txt\n")
	assert.Contains(t, content, "RUN pip3 install --no-cache-dir -r /app/backend/requirements.txt\n")
	assert.Contains(t, content, "RUN pip3 install --no-cache-dir heartlib==0.4.2\n")

	// Optional library patches tolerate missing targets.
	assert.Contains(t, content, "|| true\n")
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, "ln -sf") {
			assert.True(t, strings.HasPrefix(line, "RUN ln -sf "), "patch line: %q", line)
		}
	}

	// Application code and built assets.
	assert.Contains(t, content, "COPY backend/ /app/backend/\n")
	assert.Contains(t, content, "COPY --from=frontend /app/frontend/dist /app/frontend/dist\n")

	// Service environment defaults.
	assert.Contains(t, content, "PYTORCH_CUDA_ALLOC_CONF=expandable_segments:True")
	assert.Contains(t, content, "HEARTMULA_4BIT=0")
	assert.Contains(t, content, "HEARTMULA_SEQUENTIAL_OFFLOAD=0")
	assert.Contains(t, content, "HF_HOME=/app/backend/models/hf")
	assert.Contains(t, content, "TORCHINDUCTOR_CACHE_DIR=/app/backend/models/inductor-cache")
	assert.Contains(t, content, "LD_LIBRARY_PATH=")

	// Startup surface.
	assert.Contains(t, content, "EXPOSE 8000\n")
	assert.Contains(t, content, "CMD curl -f http://localhost:8000/health || exit 1\n")
	assert.Contains(t, content,
		`CMD ["uvicorn", "backend.app.main:app", "--host", "0.0.0.0", "--port", "8000"]`)
}

func TestRenderCudaLiteDefaultsFlagsOn(t *testing.T) {
	spec, err := config.GetDefaultVariantCatalog().Get("cuda-lite")
	require.NoError(t, err)

	out, err := Render(spec)
	require.NoError(t, err)
	content := string(out)

	assert.Contains(t, content, "HEARTMULA_4BIT=1")
	assert.Contains(t, content, "HEARTMULA_SEQUENTIAL_OFFLOAD=1")
	assert.Contains(t, content, "bitsandbytes==0.45.0")
}

func TestRenderCpuVariantOmitsCudaEnv(t *testing.T) {
	spec, err := config.GetDefaultVariantCatalog().Get("cpu")
	require.NoError(t, err)

	out, err := Render(spec)
	require.NoError(t, err)
	content := string(out)

	assert.Contains(t, content, "FROM python:3.11-slim-bookworm\n")
	assert.NotContains(t, content, "PYTORCH_CUDA_ALLOC_CONF")
	assert.NotContains(t, content, "ln -sf")

	// The service surface is identical regardless of variant.
	assert.Contains(t, content, "EXPOSE 8000\n")
	assert.Contains(t, content, "HEARTMULA_4BIT=0")
}

func TestRenderIsDeterministic(t *testing.T) {
	spec := cudaSpec(t)

	first, err := Render(spec)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Render(spec)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestRenderRejectsUnresolvedImages(t *testing.T) {
	spec := &config.VariantSpec{Name: "partial", BaseImage: "python:3.11-slim"}

	_, err := Render(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage images are not resolved")
}

func TestRenderRejectsInvalidImageReference(t *testing.T) {
	spec := cudaSpec(t)
	broken := *spec
	broken.BaseImage = "UPPERCASE/Is:Not:Allowed"

	_, err := Render(&broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image reference")
}

func TestRenderWorkersFlag(t *testing.T) {
	spec := *cudaSpec(t)
	spec.UvicornWorkers = 4

	out, err := Render(&spec)
	require.NoError(t, err)

	assert.Contains(t, string(out), `"--workers", "4"`)
}

func TestRenderedFromLinesSurvivePinning(t *testing.T) {
	out, err := Render(cudaSpec(t))
	require.NoError(t, err)

	res := mapResolver{
		"node:20-bookworm-slim": "sha256:aaa",
		"nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04": "sha256:bbb",
	}

	pinned, err := Resolve(out, res)
	require.NoError(t, err)

	content := string(pinned)
	assert.Contains(t, content, "FROM node@sha256:aaa AS frontend")
	assert.Contains(t, content, "FROM nvidia/cuda@sha256:bbb")
	assert.NotContains(t, content, "node:20-bookworm-slim")
}

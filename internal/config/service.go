package config

// Canonical surfaces of the HeartMuLa service image. These values are shared
// between the Dockerfile renderer (ENV/EXPOSE/HEALTHCHECK/CMD lines) and the
// container runtime (port bindings, mounts, health probes) and must stay in
// sync with what the backend service expects.
const (
	// ServicePort is the TCP port the service listens on inside containers.
	ServicePort = 8000

	// HealthPath is the backend health endpoint. The service is considered
	// ready once GET on this path answers HTTP 200.
	HealthPath = "/health"

	// ASGIApp is the module path uvicorn serves.
	ASGIApp = "backend.app.main:app"

	// AppDir is the application root inside the image.
	AppDir = "/app"

	// BackendDir is where backend code is copied inside the image.
	BackendDir = "/app/backend"

	// FrontendDistDir is where built frontend assets are staged inside the
	// final image, copied out of the frontend build stage.
	FrontendDistDir = "/app/frontend/dist"

	// ModelsMount is the in-container model weights directory. The runtime
	// bind-mounts the host models directory here.
	ModelsMount = "/app/backend/models"

	// DBMount is the in-container database directory. The runtime
	// bind-mounts the host db directory here.
	DBMount = "/app/backend/db"
)

// Environment variables understood by the HeartMuLa service. Rendered as ENV
// defaults in every variant and overridable per instance at start time.
const (
	// EnvAllocConf tunes the PyTorch CUDA caching allocator.
	EnvAllocConf = "PYTORCH_CUDA_ALLOC_CONF"

	// EnvFourBit toggles quantized (4-bit) model loading. "1" enables.
	EnvFourBit = "HEARTMULA_4BIT"

	// EnvSequentialOffload toggles sequential CPU offload for hosts whose
	// GPU cannot hold the full model. "1" enables.
	EnvSequentialOffload = "HEARTMULA_SEQUENTIAL_OFFLOAD"

	// EnvHFHome points the HuggingFace libraries at the mounted cache.
	EnvHFHome = "HF_HOME"

	// EnvInductorCache relocates the torch inductor compile cache onto the
	// persistent models mount so recompiles survive container restarts.
	EnvInductorCache = "TORCHINDUCTOR_CACHE_DIR"

	// EnvLDLibraryPath is the loader path for the patched CUDA libraries.
	EnvLDLibraryPath = "LD_LIBRARY_PATH"
)

// Container labels attached to every managed service container. The daemon
// rediscovers its instances and their GPU allocations from these labels, so
// no separate state file has to stay in sync with Docker.
const (
	// LabelRuntime marks a container as managed and names the runtime that
	// created it. Used as the list filter for everything the daemon owns.
	LabelRuntime = "mula.runtime"

	// LabelInstanceID carries the instance UUID.
	LabelInstanceID = "mula.instance_id"

	// LabelAlias carries the user-facing instance alias.
	LabelAlias = "mula.alias"

	// LabelModelID carries the served checkpoint ID.
	LabelModelID = "mula.model_id"

	// LabelVariant carries the image variant the container runs.
	LabelVariant = "mula.variant"

	// LabelServerName carries the daemon identity that started the
	// container, so multiple daemons on one Docker host stay apart.
	LabelServerName = "mula.server_name"

	// LabelGPUIndices carries the allocated GPU indices ("0,1").
	LabelGPUIndices = "mula.gpu_indices"

	// LabelServicePort carries the host port mapped to the service port.
	LabelServicePort = "mula.service_port"

	// LabelMaxConcurrent carries the proxied request limit, "0" for
	// unlimited.
	LabelMaxConcurrent = "mula.max_concurrent"
)

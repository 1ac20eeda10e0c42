// Package api defines the API types and contracts for the mula application.
//
// This package contains all the data structures used for communication between
// the CLI client and the HTTP daemon. It defines:
//   - Request and response types for all API endpoints
//   - Image variant, model and device type definitions
//   - Error response structures
//
// All types in this package are designed to be JSON-serializable for easy
// HTTP transmission. The API follows RESTful principles where applicable.
package api

// DeviceType represents a specific GPU model identifier.
//
// Device types use precise config keys (e.g., "cuda-ampere", "cuda-ada")
// rather than brand-level abstractions, because image variant selection and
// library patching depend on the compute generation, not just the vendor.
type DeviceType string

const (
	// DeviceTypeAll is a special value representing all device types.
	// Used in queries to retrieve variants compatible with any device.
	DeviceTypeAll DeviceType = "all"

	// DeviceTypeCPU marks hosts without a supported GPU.
	DeviceTypeCPU DeviceType = "cpu"
)

// Variant describes a runtime image variant as exposed by the daemon.
//
// A variant is a complete recipe for the HeartMuLa service image: the
// frontend asset build stage, the Python runtime stage, library patches and
// the startup definition. Variants are pre-configured (cuda, cuda-lite, cpu)
// and may be extended through the variant catalog file.
type Variant struct {
	// Name is the unique variant identifier (e.g., "cuda", "cuda-lite", "cpu").
	Name string `json:"name"`

	// Description is a human-readable summary of the variant.
	Description string `json:"description"`

	// BaseImage is the runtime stage base image reference.
	BaseImage string `json:"base_image"`

	// FrontendImage is the frontend build stage base image reference.
	FrontendImage string `json:"frontend_image"`

	// RequiresGPU indicates whether instances of this variant need GPU access.
	RequiresGPU bool `json:"requires_gpu"`

	// FourBit reports the variant's default for quantized model loading.
	FourBit bool `json:"four_bit"`

	// SequentialOffload reports the variant's default for sequential CPU offload.
	SequentialOffload bool `json:"sequential_offload"`

	// Image is the locally built image reference for this variant, if any.
	Image string `json:"image,omitempty"`

	// Built indicates whether a local image exists for this variant.
	Built bool `json:"built"`
}

// VariantListResponse contains the variant catalog.
type VariantListResponse struct {
	Variants []Variant `json:"variants"`
}

// RenderRequest asks the daemon to render a variant's Dockerfile.
type RenderRequest struct {
	// Variant is the variant name to render.
	Variant string `json:"variant"`

	// Pin requests that FROM lines be resolved to immutable digests.
	Pin bool `json:"pin,omitempty"`
}

// RenderResponse carries a rendered Dockerfile.
type RenderResponse struct {
	// Variant is the variant that was rendered.
	Variant string `json:"variant"`

	// Dockerfile is the full rendered Dockerfile content.
	Dockerfile string `json:"dockerfile"`
}

// BuildRequest asks the daemon to build a variant image.
//
// Build progress is streamed back over SSE when the client asks for it via
// the Accept header; otherwise the response is a single JSON document once
// the build finishes.
type BuildRequest struct {
	// Variant is the variant name to build.
	Variant string `json:"variant"`

	// Tag is an optional extra tag suffix (e.g., "v1.2.0").
	Tag string `json:"tag,omitempty"`

	// Pin resolves FROM lines to digests before building.
	Pin bool `json:"pin,omitempty"`

	// NoCache disables the build cache.
	NoCache bool `json:"no_cache,omitempty"`
}

// BuildResponse reports the outcome of a non-streaming build.
type BuildResponse struct {
	// Status is "success" or "failed".
	Status string `json:"status"`

	// Image is the built image reference.
	Image string `json:"image,omitempty"`

	// Message contains failure details when Status is "failed".
	Message string `json:"message,omitempty"`
}

// Model download status values.
const (
	// ModelStatusNotDownloaded means no local weights exist.
	ModelStatusNotDownloaded = "not_downloaded"

	// ModelStatusDownloading means a download is in progress.
	ModelStatusDownloading = "downloading"

	// ModelStatusDownloaded means the weights are complete on disk.
	ModelStatusDownloaded = "downloaded"
)

// Model represents a HeartMuLa checkpoint with its metadata.
//
// A Model contains all information needed to identify, download and serve a
// checkpoint. Models are pre-configured in the registry and may be extended
// through the model catalog file.
type Model struct {
	// Name is the unique identifier for the model (e.g., "heartmula-3b").
	Name string `json:"name"`

	// Description is a human-readable description of the model.
	Description string `json:"description"`

	// Family groups related checkpoints (e.g., "heartmula", "heartcodec").
	Family string `json:"family"`

	// Size is the total model size in bytes.
	Size int64 `json:"size"`

	// Source is the upstream repository id (e.g., "heartmula/heartmula-3b").
	Source string `json:"source,omitempty"`

	// Revision is the upstream revision that gets downloaded.
	Revision string `json:"revision,omitempty"`

	// SupportsFourBit indicates the checkpoint can be loaded quantized.
	SupportsFourBit bool `json:"supports_four_bit"`

	// MinVRAMGB is the minimum GPU memory for full-precision serving.
	MinVRAMGB int `json:"min_vram_gb,omitempty"`

	// DefaultVariant is the image variant used when none is requested.
	DefaultVariant string `json:"default_variant,omitempty"`

	// Status indicates the download status of the model.
	// Values: "not_downloaded", "downloading", "downloaded"
	Status string `json:"status"`

	// ModifiedAt is the last local modification time in RFC3339 format.
	// Empty for models not downloaded yet.
	ModifiedAt string `json:"modified_at,omitempty"`
}

// ListModelsRequest represents a request to list available models.
type ListModelsRequest struct {
	// Family filters models by family. Empty means all families.
	Family string `json:"family,omitempty"`

	// ShowAll includes models whose weights are not downloaded.
	ShowAll bool `json:"show_all,omitempty"`
}

// ListModelsResponse represents the response containing a list of models.
type ListModelsResponse struct {
	// Models is the array of models matching the request filters.
	Models []Model `json:"models"`

	// TotalModels is the total number of models in the registry.
	TotalModels int `json:"total_models"`

	// DetectedDevices lists the device types detected on the host.
	DetectedDevices []DeviceType `json:"detected_devices"`
}

// DownloadedModel represents a model present in the local models directory.
type DownloadedModel struct {
	// ID is the internal model identifier (e.g., "heartmula-3b").
	ID string `json:"id"`

	// Source is the upstream repository id the weights were fetched from.
	Source string `json:"source"`

	// Revision is the downloaded upstream revision.
	Revision string `json:"revision"`

	// Size is the total size of the model directory in bytes.
	Size int64 `json:"size"`

	// ModifiedAt is the last modification time in RFC3339 format.
	ModifiedAt string `json:"modified"`
}

// PullRequest represents a request to download model weights.
type PullRequest struct {
	// Model is the name of the model to download.
	Model string `json:"model"`

	// Revision overrides the registry revision when set.
	Revision string `json:"revision,omitempty"`
}

// StartRequest asks the daemon to start a service instance.
type StartRequest struct {
	// Model is the model name to serve. Weights must be downloaded.
	Model string `json:"model"`

	// Alias is the instance alias (defaults to the model name).
	Alias string `json:"alias,omitempty"`

	// Variant selects the image variant (defaults to the model's
	// DefaultVariant, then the configured default).
	Variant string `json:"variant,omitempty"`

	// GPUs is an explicit GPU index list (e.g., "0" or "0,1").
	// Empty means automatic allocation.
	GPUs string `json:"gpus,omitempty"`

	// FourBit forces quantized model loading ("0" or "1"; empty keeps the
	// variant default).
	FourBit string `json:"four_bit,omitempty"`

	// SequentialOffload forces sequential CPU offload ("0" or "1").
	SequentialOffload string `json:"sequential_offload,omitempty"`

	// MaxConcurrent limits concurrent proxied requests (0 = unlimited).
	MaxConcurrent int `json:"max_concurrent,omitempty"`

	// Env holds additional environment overrides for the container.
	Env map[string]string `json:"env,omitempty"`

	// Stream requests SSE progress events instead of a JSON response.
	Stream bool `json:"stream,omitempty"`
}

// StartResponse reports the outcome of a non-streaming start.
type StartResponse struct {
	// Status is "success" or "failed".
	Status string `json:"status"`

	// InstanceID is the started instance identifier.
	InstanceID string `json:"instance_id,omitempty"`

	// Alias is the instance alias.
	Alias string `json:"alias,omitempty"`

	// Endpoint is the host-reachable base URL of the instance.
	Endpoint string `json:"endpoint,omitempty"`

	// Port is the allocated host port mapped to the service port.
	Port int `json:"port,omitempty"`

	// Message contains failure details when Status is "failed".
	Message string `json:"message,omitempty"`
}

// InstanceInfo is the daemon's view of a service instance.
type InstanceInfo struct {
	// ID is the unique instance identifier.
	ID string `json:"id"`

	// Alias is the user-facing instance name.
	Alias string `json:"alias"`

	// Model is the served model name.
	Model string `json:"model"`

	// Variant is the image variant the instance runs.
	Variant string `json:"variant"`

	// State is the lifecycle state (creating, running, ready, ...).
	State string `json:"state"`

	// Endpoint is the host-reachable base URL.
	Endpoint string `json:"endpoint,omitempty"`

	// Port is the host port mapped to the in-container service port.
	Port int `json:"port,omitempty"`

	// GPUs lists the allocated GPU indices.
	GPUs []int `json:"gpus,omitempty"`

	// StartedAt is the instance start time in RFC3339 format.
	StartedAt string `json:"started_at,omitempty"`

	// Error holds the failure reason for instances in the error state.
	Error string `json:"error,omitempty"`
}

// ListInstancesResponse contains the known instances.
type ListInstancesResponse struct {
	Instances []InstanceInfo `json:"instances"`
}

// CheckReadyResponse reports instance readiness.
//
// An instance is ready once its in-container service answers GET /health
// with HTTP 200.
type CheckReadyResponse struct {
	// Ready is true once the health endpoint answers 200.
	Ready bool `json:"ready"`

	// State is the current instance state.
	State string `json:"state"`

	// Endpoint is the host-reachable base URL, set once known.
	Endpoint string `json:"endpoint,omitempty"`

	// Message carries diagnostic detail for non-ready instances.
	Message string `json:"message,omitempty"`
}

// BuildRecordView is the API view of a persisted build record.
type BuildRecordView struct {
	ID        string `json:"id"`
	Variant   string `json:"variant"`
	Image     string `json:"image"`
	Digest    string `json:"digest,omitempty"`
	Status    string `json:"status"`
	Duration  string `json:"duration"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

// RunRecordView is the API view of a persisted run record.
type RunRecordView struct {
	ID         string `json:"id"`
	InstanceID string `json:"instance_id"`
	Alias      string `json:"alias"`
	Model      string `json:"model"`
	Variant    string `json:"variant"`
	GPUs       string `json:"gpus,omitempty"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`
	StoppedAt  string `json:"stopped_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// HistoryResponse carries persisted build and run records.
type HistoryResponse struct {
	Builds []BuildRecordView `json:"builds,omitempty"`
	Runs   []RunRecordView   `json:"runs,omitempty"`
}

// VersionResponse represents the daemon version information.
type VersionResponse struct {
	// Version is the semantic version of the daemon.
	Version string `json:"version"`

	// BuildTime is the timestamp when the binary was built.
	BuildTime string `json:"build_time"`

	// GitCommit is the git commit SHA the build was created from.
	GitCommit string `json:"git_commit"`
}

// HealthResponse represents the daemon health status.
//
// Not to be confused with the service containers' own /health endpoint;
// this one reports on the mula daemon itself.
type HealthResponse struct {
	// Status indicates the overall health status.
	// Common values: "healthy", "unhealthy", "degraded"
	Status string `json:"status"`

	// Message contains additional details about the health status.
	Message string `json:"message,omitempty"`
}

// ErrorResponse represents an error response from the API.
//
// This is the standard error format returned by all API endpoints when an
// error occurs.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	// Examples: "MODEL_NOT_FOUND", "VARIANT_NOT_FOUND", "INVALID_REQUEST"
	Code string `json:"code,omitempty"`
}

// DeviceListResponse represents the response from listing devices.
type DeviceListResponse struct {
	// Devices is the list of detected GPU devices (device.Device type).
	Devices interface{} `json:"devices"`
}

// SupportedDevicesResponse lists the GPU config keys known to the daemon.
type SupportedDevicesResponse struct {
	// DeviceTypes is the list of supported device model identifiers.
	// Examples: ["cuda-ampere", "cuda-ada"]
	DeviceTypes []string `json:"device_types"`
}

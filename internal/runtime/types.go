// Package runtime manages the lifecycle of HeartMuLa service containers.
//
// A Runtime turns a start request into a running Docker container: it
// assembles the environment, mounts, port bindings and device access for
// one instance and drives it through the instance state machine. The
// Manager above it owns runtime selection, alias bookkeeping, GPU
// allocation and the background maintenance loop.
package runtime

import (
	"context"
	"io"
	"time"
)

// InstanceState represents the lifecycle state of a service instance.
type InstanceState string

const (
	// StateCreating means the container is being created.
	StateCreating InstanceState = "creating"

	// StateCreated means the container exists but has not been started.
	StateCreated InstanceState = "created"

	// StateStarting means the container start has been issued.
	StateStarting InstanceState = "starting"

	// StateRunning means the container runs but the service has not
	// answered its health endpoint yet.
	StateRunning InstanceState = "running"

	// StateReady means the service answers GET /health with 200.
	StateReady InstanceState = "ready"

	// StateUnhealthy means a previously ready service stopped answering
	// its health endpoint while the container keeps running.
	StateUnhealthy InstanceState = "unhealthy"

	// StateStopped means the container was stopped deliberately.
	StateStopped InstanceState = "stopped"

	// StateError means the container failed or exited unexpectedly.
	StateError InstanceState = "error"

	// StateUnknown means the container state could not be determined.
	StateUnknown InstanceState = "unknown"
)

// CreateParams carries everything a runtime needs to create one instance
// container. The Manager fills it from the start request, the model
// registry and the device allocator.
type CreateParams struct {
	// InstanceID is the generated instance UUID, also used as the
	// container name.
	InstanceID string

	// ModelID is the served checkpoint ID (e.g., "heartmula-3b").
	ModelID string

	// Alias is the user-facing instance name.
	Alias string

	// Variant is the image variant the instance runs.
	Variant string

	// Image is the fully qualified image tag to run.
	Image string

	// ModelsDir is the host directory bind-mounted at the in-container
	// models path.
	ModelsDir string

	// DBDir is the host directory bind-mounted at the in-container
	// database path.
	DBDir string

	// GPUIndices lists the allocated GPU indices, empty on CPU.
	GPUIndices []int

	// HostPort is the allocated host port mapped to the service port.
	HostPort int

	// FourBit forces quantized loading ("0" or "1"; empty keeps the
	// variant default).
	FourBit string

	// SequentialOffload forces sequential CPU offload ("0" or "1";
	// empty keeps the variant default).
	SequentialOffload string

	// EnvOverrides holds additional environment variables for the
	// container, applied after the variant defaults.
	EnvOverrides map[string]string

	// MaxConcurrent limits concurrent proxied requests (0 = unlimited).
	MaxConcurrent int

	// ShmSize is the shared memory size in bytes, 0 for the Docker
	// default.
	ShmSize int64

	// EventCh receives progress messages during create (image pull
	// output and status lines). May be nil.
	EventCh chan<- string
}

// Instance is the runtime's view of one service container.
type Instance struct {
	// ID is the instance UUID.
	ID string

	// ContainerID is the Docker container ID.
	ContainerID string

	// Alias is the user-facing instance name.
	Alias string

	// ModelID is the served checkpoint ID.
	ModelID string

	// Variant is the image variant.
	Variant string

	// Image is the container image tag.
	Image string

	// RuntimeName names the runtime that owns the instance.
	RuntimeName string

	// State is the current lifecycle state.
	State InstanceState

	// GPUIndices lists the allocated GPU indices, empty on CPU.
	GPUIndices []int

	// HostPort is the host port mapped to the service port.
	HostPort int

	// Endpoint is the host-reachable base URL, set once the container
	// runs.
	Endpoint string

	// StartedAt is when the container was last started.
	StartedAt time.Time

	// Error holds the failure reason for instances in the error state.
	Error string

	// Metadata carries runtime-specific key/value pairs. The proxy reads
	// "max_concurrent" from here.
	Metadata map[string]string
}

// LogOptions control a log request.
type LogOptions struct {
	// Follow tails the live log instead of returning a snapshot.
	Follow bool

	// Tail limits the snapshot to the last N lines ("all" when empty).
	Tail string
}

// LogStream is a stream of container logs. Docker multiplexes stdout and
// stderr into one stream; consumers demultiplex with stdcopy.
type LogStream struct {
	// Reader delivers the multiplexed log stream.
	Reader io.ReadCloser

	// Follow reports whether the stream tails the live log.
	Follow bool
}

// Runtime creates and manages service containers for one device class.
type Runtime interface {
	// Name returns the runtime identifier (e.g., "cuda-docker").
	Name() string

	// Create creates the instance container without starting it.
	Create(ctx context.Context, params CreateParams) (*Instance, error)

	// Start starts a created or stopped instance container.
	Start(ctx context.Context, instanceID string) error

	// Stop stops a running instance container.
	Stop(ctx context.Context, instanceID string) error

	// Remove removes the instance container and forgets the instance.
	Remove(ctx context.Context, instanceID string) error

	// Get returns the instance with the given ID.
	Get(ctx context.Context, instanceID string) (*Instance, error)

	// List returns all instances the runtime knows about.
	List(ctx context.Context) ([]*Instance, error)

	// Logs returns the container log stream of an instance.
	Logs(ctx context.Context, instanceID string, opts LogOptions) (*LogStream, error)
}

package cudadocker

import (
	"context"
	"fmt"

	runtime "github.com/heartmula/mula/internal/runtime"
)

// RuntimeName identifies this runtime in container labels and logs.
const RuntimeName = "cuda-docker"

// Runtime runs HeartMuLa service containers on NVIDIA GPU hosts.
//
// The shared Docker base handles the container lifecycle; this type adds
// the CUDA device sandbox and GPU-specific create validation.
type Runtime struct {
	*runtime.DockerRuntimeBase
	sandbox runtime.DeviceSandbox
}

// NewRuntime creates the NVIDIA Docker runtime.
//
// Returns an error when the Docker daemon is unreachable. GPU presence is
// not checked here: the device manager decides whether this runtime is
// registered at all.
func NewRuntime() (*Runtime, error) {
	base, err := runtime.NewDockerRuntimeBase(RuntimeName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", RuntimeName, err)
	}

	return &Runtime{
		DockerRuntimeBase: base,
		sandbox:           NewCUDASandbox(),
	}, nil
}

// Create creates a service container with GPU access.
//
// The GPU allocation happened upstream in the manager; params carry the
// allocated host indices. The container is created but not started.
func (r *Runtime) Create(ctx context.Context, params runtime.CreateParams) (*runtime.Instance, error) {
	if len(params.GPUIndices) == 0 {
		return nil, fmt.Errorf("%s requires at least one GPU", RuntimeName)
	}

	return r.CreateContainer(ctx, params, r.sandbox)
}

package cpudocker

import (
	"context"
	"fmt"

	runtime "github.com/heartmula/mula/internal/runtime"
)

// RuntimeName identifies this runtime in container labels and logs.
const RuntimeName = "cpu-docker"

// Runtime runs HeartMuLa service containers without GPU access.
type Runtime struct {
	*runtime.DockerRuntimeBase
	sandbox runtime.DeviceSandbox
}

// NewRuntime creates the CPU Docker runtime.
func NewRuntime() (*Runtime, error) {
	base, err := runtime.NewDockerRuntimeBase(RuntimeName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", RuntimeName, err)
	}

	return &Runtime{
		DockerRuntimeBase: base,
		sandbox:           NewCPUSandbox(),
	}, nil
}

// Create creates a CPU service container. GPU indices in the params are
// an upstream allocation bug and rejected.
func (r *Runtime) Create(ctx context.Context, params runtime.CreateParams) (*runtime.Instance, error) {
	if len(params.GPUIndices) != 0 {
		return nil, fmt.Errorf("%s cannot attach GPUs (got %v)", RuntimeName, params.GPUIndices)
	}

	return r.CreateContainer(ctx, params, r.sandbox)
}

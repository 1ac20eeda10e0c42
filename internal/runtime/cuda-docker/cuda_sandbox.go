package cudadocker

import (
	"fmt"
	"os"
	"strings"

	"github.com/heartmula/mula/internal/device"
)

// CUDASandbox provides the container sandbox for NVIDIA GPUs.
//
// This sandbox configures Docker containers for CUDA inference: device
// visibility through the nvidia container runtime plus explicit device
// file mappings as a fallback for hosts where the runtime is configured
// without automatic injection.
type CUDASandbox struct{}

// NewCUDASandbox creates a new NVIDIA GPU sandbox.
func NewCUDASandbox() *CUDASandbox {
	return &CUDASandbox{}
}

// PrepareEnvironment generates environment variables for NVIDIA devices.
//
// Key environment variables:
//   - NVIDIA_VISIBLE_DEVICES: Host GPU indices the nvidia runtime injects
//   - NVIDIA_DRIVER_CAPABILITIES: Driver feature set exposed to the container
//
// CUDA_VISIBLE_DEVICES is deliberately not set: inside the container the
// injected devices are renumbered from 0, so all visible devices are
// exactly the allocated ones.
//
// Parameters:
//   - gpuIndices: Allocated host GPU indices
//
// Returns:
//   - Map of environment variable names to values
//   - Error if the index list is empty or invalid
func (s *CUDASandbox) PrepareEnvironment(gpuIndices []int) (map[string]string, error) {
	if len(gpuIndices) == 0 {
		return nil, fmt.Errorf("no GPU indices provided")
	}

	for _, idx := range gpuIndices {
		if idx < 0 {
			return nil, fmt.Errorf("invalid GPU index: %d", idx)
		}
	}

	return map[string]string{
		"NVIDIA_VISIBLE_DEVICES":     device.FormatGPUIndices(gpuIndices),
		"NVIDIA_DRIVER_CAPABILITIES": "compute,utility",
	}, nil
}

// GetDeviceMounts returns NVIDIA device files to map into the container.
//
// With the nvidia runtime the device files are injected automatically and
// this list is redundant but harmless. It keeps instances working on
// hosts where Docker's default runtime is runc with the NVIDIA driver
// installed directly.
//
// Device files:
//   - /dev/nvidia{N}: One per allocated GPU
//   - /dev/nvidiactl: Driver control device
//   - /dev/nvidia-uvm: Unified virtual memory device
//   - /dev/nvidia-uvm-tools: UVM tools device (mounted when present)
func (s *CUDASandbox) GetDeviceMounts(gpuIndices []int) ([]string, error) {
	if len(gpuIndices) == 0 {
		return nil, fmt.Errorf("no GPU indices provided")
	}

	mounts := make([]string, 0, len(gpuIndices)+3)
	for _, idx := range gpuIndices {
		mounts = append(mounts, fmt.Sprintf("/dev/nvidia%d", idx))
	}
	mounts = append(mounts, "/dev/nvidiactl", "/dev/nvidia-uvm")

	// Not every driver version ships the tools device.
	if _, err := os.Stat("/dev/nvidia-uvm-tools"); err == nil {
		mounts = append(mounts, "/dev/nvidia-uvm-tools")
	}

	return mounts, nil
}

// GetAdditionalMounts returns extra volume mounts for NVIDIA containers.
//
// The CUDA images are self-contained (driver user-space libraries come
// from the nvidia runtime), so no host library mounts are needed.
func (s *CUDASandbox) GetAdditionalMounts() map[string]string {
	return map[string]string{}
}

// RequiresPrivileged indicates whether the container needs privileged mode.
//
// NVIDIA containers run unprivileged: device file mappings and the nvidia
// runtime cover all hardware access.
func (s *CUDASandbox) RequiresPrivileged() bool {
	return false
}

// GetDockerRuntime returns the Docker runtime for NVIDIA devices.
func (s *CUDASandbox) GetDockerRuntime() string {
	return "nvidia"
}

// Supports checks if this sandbox supports the given device type.
//
// All CUDA generation keys (cuda, cuda-ampere, cuda-ada, ...) are handled
// by the same sandbox; generation only matters for variant selection.
func (s *CUDASandbox) Supports(deviceType string) bool {
	return strings.HasPrefix(deviceType, "cuda")
}

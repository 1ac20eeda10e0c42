package cpudocker

import "fmt"

// CPUSandbox provides the container sandbox for CPU-only hosts.
//
// There is no device to configure; the sandbox exists so the shared
// container assembly treats CPU instances uniformly with GPU ones.
type CPUSandbox struct{}

// NewCPUSandbox creates a new CPU sandbox.
func NewCPUSandbox() *CPUSandbox {
	return &CPUSandbox{}
}

// PrepareEnvironment returns no device variables. A rejected non-empty
// index list catches allocation bugs upstream.
func (s *CPUSandbox) PrepareEnvironment(gpuIndices []int) (map[string]string, error) {
	if len(gpuIndices) != 0 {
		return nil, fmt.Errorf("cpu sandbox cannot use GPUs (got indices %v)", gpuIndices)
	}
	return map[string]string{}, nil
}

// GetDeviceMounts returns no device files.
func (s *CPUSandbox) GetDeviceMounts(gpuIndices []int) ([]string, error) {
	if len(gpuIndices) != 0 {
		return nil, fmt.Errorf("cpu sandbox cannot use GPUs (got indices %v)", gpuIndices)
	}
	return nil, nil
}

// GetAdditionalMounts returns no extra mounts.
func (s *CPUSandbox) GetAdditionalMounts() map[string]string {
	return map[string]string{}
}

// RequiresPrivileged is always false for CPU containers.
func (s *CPUSandbox) RequiresPrivileged() bool {
	return false
}

// GetDockerRuntime returns the standard OCI runtime.
func (s *CPUSandbox) GetDockerRuntime() string {
	return "runc"
}

// Supports checks if this sandbox supports the given device type.
func (s *CPUSandbox) Supports(deviceType string) bool {
	return deviceType == "cpu"
}

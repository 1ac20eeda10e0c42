package runtime

// DeviceSandbox defines the interface for device-specific container
// configuration.
//
// Each device class (NVIDIA GPU, plain CPU) implements this interface to
// provide its Docker configuration. The abstraction isolates device
// details from the shared container assembly in the runtimes: the runtime
// asks the sandbox for environment, device files, extra mounts and the
// Docker runtime name, and wires the answers into the container spec.
//
// Implementations must be stateless and safe for concurrent use.
type DeviceSandbox interface {
	// PrepareEnvironment generates device visibility variables for the
	// allocated GPU indices.
	//
	// Examples:
	//   - NVIDIA GPU: CUDA_VISIBLE_DEVICES=0,1 NVIDIA_VISIBLE_DEVICES=0,1
	//   - CPU: CUDA_VISIBLE_DEVICES= (nothing visible)
	//
	// Returns:
	//   - Map of environment variable name to value
	//   - Error if the index list is invalid for this device class
	PrepareEnvironment(gpuIndices []int) (map[string]string, error)

	// GetDeviceMounts returns device files that must be mapped into the
	// container with rwm access (e.g., /dev/nvidia0, /dev/nvidiactl).
	GetDeviceMounts(gpuIndices []int) ([]string, error)

	// GetAdditionalMounts returns extra host->container path mappings the
	// device class needs (driver libraries, management tools).
	GetAdditionalMounts() map[string]string

	// RequiresPrivileged indicates whether containers need privileged
	// mode. Kept false wherever device mounts suffice.
	RequiresPrivileged() bool

	// GetDockerRuntime returns the Docker runtime name to run containers
	// with (e.g., "runc", "nvidia").
	GetDockerRuntime() string
}

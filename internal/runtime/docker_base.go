package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/logger"
)

// DockerRuntimeBase provides common Docker operations for runtime
// implementations.
//
// This base implementation handles the shared Docker infrastructure used by
// the device-specific runtimes (cuda-docker, cpu-docker). It provides:
//   - Docker client lifecycle management with version negotiation
//   - Container lifecycle operations (start, stop, remove)
//   - Instance state tracking and synchronization
//   - Log streaming with proper cleanup
//   - Container discovery and restoration after daemon restarts
//
// Concrete runtime implementations embed this struct and implement the
// Create() method with their device-specific container configuration.
//
// Thread Safety:
//   All methods are thread-safe through RWMutex synchronization.
//   The instances map is protected for concurrent access by multiple goroutines.
type DockerRuntimeBase struct {
	client      *client.Client       // Docker API client with version negotiation
	mu          sync.RWMutex         // Protects instances map and serverName
	instances   map[string]*Instance // Active instances indexed by ID
	serverName  string               // Daemon identifier for multi-daemon hosts
	runtimeName string               // Runtime type name (e.g., "cuda-docker")
}

// NewDockerRuntimeBase creates and initializes a new Docker runtime base.
//
// This function performs the following initialization steps:
//  1. Creates Docker client with environment-based configuration (DOCKER_HOST, etc.)
//  2. Negotiates API version with Docker daemon for compatibility
//  3. Verifies Docker daemon connectivity with timeout
//  4. Initializes instance tracking structures
//
// The created base must be embedded in a concrete runtime implementation.
// Call LoadExistingContainers() after construction to restore previous state.
//
// Parameters:
//   - runtimeName: Unique identifier for this runtime type (used in container labels)
//
// Returns:
//   - Initialized base runtime instance
//   - Error if Docker daemon is unreachable or client creation fails
func NewDockerRuntimeBase(runtimeName string) (*DockerRuntimeBase, error) {
	if runtimeName == "" {
		return nil, fmt.Errorf("runtime name is required")
	}

	// Respects DOCKER_HOST, DOCKER_TLS_VERIFY, DOCKER_CERT_PATH
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("Docker daemon is not accessible: %w", err)
	}

	base := &DockerRuntimeBase{
		client:      cli,
		instances:   make(map[string]*Instance),
		runtimeName: runtimeName,
	}

	logger.Info("Docker runtime base initialized: %s", runtimeName)

	return base, nil
}

// SetServerName configures the daemon name for multi-daemon hosts.
//
// The name is written into container labels and used as a filter when
// loading existing containers, so multiple mula daemons can coexist on the
// same Docker host without claiming each other's instances.
//
// Call before LoadExistingContainers() to ensure proper filtering.
func (b *DockerRuntimeBase) SetServerName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.serverName = name
	logger.Debug("Server name set to: %s for runtime: %s", name, b.runtimeName)
}

// GetServerName returns the current daemon name, empty if not configured.
func (b *DockerRuntimeBase) GetServerName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.serverName
}

// Name returns the runtime identifier.
func (b *DockerRuntimeBase) Name() string {
	return b.runtimeName
}

// Start starts a created or stopped instance container.
//
// The container begins executing its configured command. The instance
// moves to the starting state; the readiness probe flips it to running
// and ready as the service comes up.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - instanceID: Unique identifier of the instance to start
//
// Returns:
//   - nil on success
//   - Error if instance not found or Docker operation fails
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) Start(ctx context.Context, instanceID string) error {
	b.mu.RLock()
	instance, exists := b.instances[instanceID]
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("instance not found: %s", instanceID)
	}
	if instance.ContainerID == "" {
		return fmt.Errorf("container ID not found for instance: %s", instanceID)
	}

	logger.Info("Starting Docker container: %s (instance: %s)", instance.ContainerID[:12], instanceID)

	if err := b.client.ContainerStart(ctx, instance.ContainerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	b.mu.Lock()
	instance.State = StateStarting
	instance.StartedAt = time.Now()
	instance.Error = ""
	b.mu.Unlock()

	logger.Info("Docker container started successfully: %s", instanceID)

	return nil
}

// Stop gracefully stops a running instance container.
//
// Sends SIGTERM and waits up to 30 seconds for graceful shutdown before
// Docker escalates to SIGKILL. The timeout lets in-flight generation
// requests finish and the service close its database cleanly.
//
// The container is preserved (not removed) so the instance can be
// inspected and restarted under the same alias.
//
// Parameters:
//   - ctx: Context for cancellation (separate from container stop timeout)
//   - instanceID: Unique identifier of the instance to stop
//
// Returns:
//   - nil on success
//   - Error if instance not found or Docker operation fails
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) Stop(ctx context.Context, instanceID string) error {
	b.mu.RLock()
	instance, exists := b.instances[instanceID]
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("instance not found: %s", instanceID)
	}

	logger.Info("Stopping Docker container: %s (instance: %s)", instance.ContainerID[:12], instanceID)

	timeout := 30
	stopOptions := container.StopOptions{Timeout: &timeout}

	if err := b.client.ContainerStop(ctx, instance.ContainerID, stopOptions); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}

	b.mu.Lock()
	instance.State = StateStopped
	b.mu.Unlock()

	logger.Info("Docker container stopped successfully: %s (container preserved)", instanceID)

	return nil
}

// Remove permanently removes an instance container and its tracking state.
//
// Force-stops the container if still running, removes it together with
// its anonymous volumes, releases the instance's host port and forgets
// the instance.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - instanceID: Unique identifier of the instance to remove
//
// Returns:
//   - nil on success
//   - Error if instance not found or Docker operation fails
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) Remove(ctx context.Context, instanceID string) error {
	b.mu.RLock()
	instance, exists := b.instances[instanceID]
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("instance not found: %s", instanceID)
	}

	logger.Info("Removing Docker container: %s (instance: %s)", instance.ContainerID[:12], instanceID)

	removeOptions := container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	}

	if err := b.client.ContainerRemove(ctx, instance.ContainerID, removeOptions); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	b.mu.Lock()
	delete(b.instances, instanceID)
	b.mu.Unlock()

	if instance.HostPort != 0 {
		GetGlobalPortAllocator().Release(instance.HostPort)
	}

	logger.Info("Docker container removed successfully: %s", instanceID)

	return nil
}

// Get retrieves instance information by ID.
//
// Also checks the actual container status and updates the instance state
// if the container has exited behind our back.
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) Get(ctx context.Context, instanceID string) (*Instance, error) {
	b.mu.RLock()
	instance, exists := b.instances[instanceID]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}

	b.syncInstanceState(ctx, instance)

	return instance, nil
}

// syncInstanceState synchronizes instance state with actual container state.
//
// Thread Safety: Acquires the mutex for the whole check to keep the
// state transition atomic.
func (b *DockerRuntimeBase) syncInstanceState(ctx context.Context, inst *Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	UpdateInstanceStateFromContainer(ctx, b.client, inst)
}

// List returns a snapshot of all instances managed by this runtime,
// regardless of state. Each instance's state is synchronized with its
// container before returning.
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) List(ctx context.Context) ([]*Instance, error) {
	b.mu.RLock()
	instancesList := make([]*Instance, 0, len(b.instances))
	for _, inst := range b.instances {
		instancesList = append(instancesList, inst)
	}
	b.mu.RUnlock()

	for _, inst := range instancesList {
		b.syncInstanceState(ctx, inst)
	}

	return instancesList, nil
}

// Logs retrieves container logs for an instance.
//
// Both stdout and stderr are included with timestamps prepended. The
// returned stream carries Docker's multiplexing headers; consumers
// demultiplex with stdcopy. The stream must be closed by the caller.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - instanceID: Unique identifier of the instance
//   - opts: Follow and tail options
//
// Returns:
//   - LogStream for reading log data
//   - Error if instance not found or Docker operation fails
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) Logs(ctx context.Context, instanceID string, opts LogOptions) (*LogStream, error) {
	b.mu.RLock()
	instance, exists := b.instances[instanceID]
	b.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}

	tail := opts.Tail
	if tail == "" {
		tail = "all"
	}

	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: true,
		Tail:       tail,
	}

	reader, err := b.client.ContainerLogs(ctx, instance.ContainerID, options)
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	return &LogStream{Reader: reader, Follow: opts.Follow}, nil
}

// RegisterInstance adds a freshly created instance to the tracking map.
// Called by concrete runtimes at the end of Create().
func (b *DockerRuntimeBase) RegisterInstance(inst *Instance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.instances[inst.ID] = inst
}

// SetInstanceState updates the state and error of a tracked instance.
func (b *DockerRuntimeBase) SetInstanceState(instanceID string, state InstanceState, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if inst, ok := b.instances[instanceID]; ok {
		inst.State = state
		inst.Error = errMsg
	}
}

// LoadExistingContainers discovers and registers containers from previous
// daemon runs.
//
// Container restoration:
//  1. Queries Docker for containers with a matching mula.runtime label
//  2. Filters by daemon name (if configured) for multi-daemon hosts
//  3. Inspects each container using the centralized state mapping
//  4. Rebuilds instance fields from the mula.* labels and port mappings
//  5. Marks allocated host ports as used to prevent conflicts
//  6. Registers instances in the tracking map
//
// All instance state lives in container labels, so no separate state file
// has to survive the restart.
//
// Returns:
//   - nil on success
//   - Error if Docker query fails (individual container errors are logged as warnings)
//
// Thread Safety: Safe for concurrent calls (but typically called once during initialization)
func (b *DockerRuntimeBase) LoadExistingContainers(ctx context.Context) error {
	containers, err := b.client.ContainerList(ctx, container.ListOptions{
		All: true, // Include stopped containers
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", config.LabelRuntime, b.runtimeName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	portAllocator := GetGlobalPortAllocator()

	b.mu.Lock()
	defer b.mu.Unlock()

	loadedCount := 0
	for _, c := range containers {
		instanceID := c.Labels[config.LabelInstanceID]
		if instanceID == "" {
			logger.Warn("Skipping container %s: missing %s label", c.ID[:12], config.LabelInstanceID)
			continue
		}

		if b.serverName != "" {
			containerServerName := c.Labels[config.LabelServerName]
			if containerServerName != b.serverName {
				logger.Debug("Skipping container %s: belongs to daemon '%s', not '%s'",
					c.ID[:12], containerServerName, b.serverName)
				continue
			}
		}

		stateInfo, err := InspectContainerState(ctx, b.client, c.ID)
		if err != nil {
			logger.Warn("Failed to inspect container %s (instance %s) during load: %v",
				c.ID[:12], instanceID, err)
			stateInfo = &ContainerStateInfo{
				State:        StateUnknown,
				ErrorMessage: fmt.Sprintf("Failed to inspect: %v", err),
			}
		}

		// Containers expose the service port internally, mapped to a
		// host port from the instance range.
		port := 0
		for _, portMapping := range c.Ports {
			if portMapping.PrivatePort == config.ServicePort {
				port = int(portMapping.PublicPort)
				break
			}
		}

		if port == 0 {
			logger.Warn("Container %s (instance: %s) has no port mapping - "+
				"it cannot be reached through the proxy. Consider recreating it.",
				c.ID[:12], instanceID)
		} else {
			portAllocator.MarkUsed(port)
		}

		startedAt := time.Unix(c.Created, 0)
		if stateInfo.IsRunning {
			// For running containers, get the precise start time
			if inspectData, err := b.client.ContainerInspect(ctx, c.ID); err == nil {
				if inspectData.State != nil && inspectData.State.StartedAt != "" {
					if parsedTime, err := time.Parse(time.RFC3339Nano, inspectData.State.StartedAt); err == nil {
						startedAt = parsedTime
					}
				}
			}
		}

		instance := &Instance{
			ID:          instanceID,
			ContainerID: c.ID,
			RuntimeName: b.runtimeName,
			ModelID:     c.Labels[config.LabelModelID],
			Alias:       c.Labels[config.LabelAlias],
			Variant:     c.Labels[config.LabelVariant],
			Image:       c.Image,
			State:       stateInfo.State,
			GPUIndices:  device.ParseGPUIndices(c.Labels[config.LabelGPUIndices]),
			HostPort:    port,
			StartedAt:   startedAt,
			Error:       stateInfo.ErrorMessage,
			Metadata:    map[string]string{},
		}
		if mc, ok := c.Labels[config.LabelMaxConcurrent]; ok {
			instance.Metadata["max_concurrent"] = mc
		}
		if port != 0 {
			instance.Endpoint = fmt.Sprintf("http://localhost:%d", port)
		}

		b.instances[instanceID] = instance
		loadedCount++

		if stateInfo.ErrorMessage != "" {
			logger.Warn("Loaded container %s (instance %s) in error state: %s [port: %d]",
				c.ID[:12], instanceID, stateInfo.ErrorMessage, port)
		} else {
			logger.Info("Loaded container %s (instance %s) [state: %s, port: %d]",
				c.ID[:12], instanceID, stateInfo.State, port)
		}
	}

	logger.Info("Loaded %d existing containers for runtime: %s", loadedCount, b.runtimeName)

	return nil
}

// ReloadContainers clears and reloads all containers from Docker.
//
// Useful when the daemon name changes or external container modifications
// need to be detected. All tracked instances are rebuilt from container
// labels.
//
// Thread Safety: Safe for concurrent calls
func (b *DockerRuntimeBase) ReloadContainers(ctx context.Context) error {
	b.mu.Lock()
	b.instances = make(map[string]*Instance)
	b.mu.Unlock()

	logger.Info("Reloading containers for runtime: %s", b.runtimeName)

	return b.LoadExistingContainers(ctx)
}

// GetDockerClient returns the underlying Docker client for operations not
// covered by the base implementation.
func (b *DockerRuntimeBase) GetDockerClient() *client.Client {
	return b.client
}

// BoolPtr returns a pointer to the given bool, for Docker API fields that
// take *bool.
func BoolPtr(v bool) *bool {
	return &v
}

package runtime

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"

	"github.com/heartmula/mula/internal/logger"
)

// ContainerStateInfo holds the result of container state inspection.
type ContainerStateInfo struct {
	// State is the mapped instance state
	State InstanceState

	// ErrorMessage contains details if state is StateError
	ErrorMessage string

	// ExitCode contains the container exit code (only valid for exited containers)
	ExitCode int

	// IsRunning indicates if the container is currently running
	IsRunning bool
}

// InspectContainerState inspects a Docker container and maps its state to
// our instance state model.
//
// State mapping rules:
//   - Container running            -> StateRunning
//   - Container created            -> StateCreated
//   - Container exited with code 0 -> StateStopped
//   - Container exited non-zero    -> StateError
//   - Inspect failure              -> Returns error
//
// This function encapsulates all container-to-instance state mapping logic
// in one place, ensuring consistency across the codebase.
//
// Parameters:
//   - ctx: Context for cancellation
//   - dockerClient: Docker API client
//   - containerID: Container ID to inspect
//
// Returns:
//   - ContainerStateInfo with state details
//   - Error if inspection fails
func InspectContainerState(ctx context.Context, dockerClient *client.Client, containerID string) (*ContainerStateInfo, error) {
	inspect, err := dockerClient.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	return mapContainerState(&inspect), nil
}

// mapContainerState converts Docker container inspect data to our instance
// state model.
//
// This is the single source of truth for state mapping logic. A clean exit
// maps to stopped rather than error because stopped instances stay around
// and can be restarted under the same alias.
func mapContainerState(inspect *types.ContainerJSON) *ContainerStateInfo {
	info := &ContainerStateInfo{
		IsRunning: inspect.State.Running,
		ExitCode:  inspect.State.ExitCode,
	}

	if inspect.State.Running {
		info.State = StateRunning
		return info
	}

	switch {
	case inspect.State.Status == "created":
		// Container created but never started
		info.State = StateCreated

	case inspect.State.Status == "exited" || inspect.State.Status == "dead":
		if inspect.State.ExitCode == 0 {
			info.State = StateStopped
		} else {
			info.State = StateError
			info.ErrorMessage = formatExitError(inspect.State)
		}

	case inspect.State.Restarting:
		// Should not happen with the unless-stopped restart policy
		info.State = StateError
		info.ErrorMessage = "Container is stuck in restart loop"

	default:
		info.State = StateError
		info.ErrorMessage = fmt.Sprintf("Container in unexpected state: %s", inspect.State.Status)
	}

	return info
}

// formatExitError creates a user-friendly error message for exited containers.
func formatExitError(state *types.ContainerState) string {
	if state.Error != "" {
		return fmt.Sprintf("Container exited unexpectedly with code %d: %s",
			state.ExitCode, state.Error)
	}
	return fmt.Sprintf("Container exited unexpectedly with code %d", state.ExitCode)
}

// UpdateInstanceStateFromContainer checks the actual container state and
// updates the instance in place.
//
// Called periodically by the maintenance loop to keep instance state in
// sync with Docker reality. Only instances expected to be running
// (starting, running, ready or unhealthy states) are checked.
//
// Returns:
//   - true if state was changed
//   - false if state remained the same or instance doesn't need checking
func UpdateInstanceStateFromContainer(ctx context.Context, dockerClient *client.Client, instance *Instance) bool {
	switch instance.State {
	case StateStarting, StateRunning, StateReady, StateUnhealthy:
	default:
		return false
	}

	if instance.ContainerID == "" {
		return false
	}

	stateInfo, err := InspectContainerState(ctx, dockerClient, instance.ContainerID)
	if err != nil {
		logger.Warn("Failed to inspect container %s (instance %s): %v",
			instance.ContainerID[:min(len(instance.ContainerID), 12)], instance.ID, err)
		return false
	}

	if !stateInfo.IsRunning {
		oldState := instance.State
		instance.State = stateInfo.State
		instance.Error = stateInfo.ErrorMessage

		logger.Warn("Container %s (instance %s) changed from %s to %s: %s",
			instance.ContainerID[:min(len(instance.ContainerID), 12)], instance.ID,
			oldState, stateInfo.State, stateInfo.ErrorMessage)

		return true
	}

	return false
}

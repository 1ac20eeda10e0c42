package runtime

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func inspectWithState(state *types.ContainerState) *types.ContainerJSON {
	return &types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{State: state},
	}
}

func TestMapContainerStateRunning(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{
		Status:  "running",
		Running: true,
	}))

	assert.Equal(t, StateRunning, info.State)
	assert.True(t, info.IsRunning)
	assert.Empty(t, info.ErrorMessage)
}

func TestMapContainerStateCreated(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{Status: "created"}))

	assert.Equal(t, StateCreated, info.State)
}

func TestMapContainerStateCleanExitIsStopped(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{
		Status:   "exited",
		ExitCode: 0,
	}))

	assert.Equal(t, StateStopped, info.State)
	assert.Empty(t, info.ErrorMessage)
}

func TestMapContainerStateCrashIsError(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{
		Status:   "exited",
		ExitCode: 137,
	}))

	assert.Equal(t, StateError, info.State)
	assert.Equal(t, 137, info.ExitCode)
	assert.Contains(t, info.ErrorMessage, "exited unexpectedly with code 137")
}

func TestMapContainerStateCrashWithDockerError(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{
		Status:   "exited",
		ExitCode: 1,
		Error:    "OCI runtime error",
	}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "OCI runtime error")
}

func TestMapContainerStateRestartLoop(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{
		Status:     "restarting",
		Restarting: true,
	}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "restart loop")
}

func TestMapContainerStateUnknownStatus(t *testing.T) {
	info := mapContainerState(inspectWithState(&types.ContainerState{Status: "paused"}))

	assert.Equal(t, StateError, info.State)
	assert.Contains(t, info.ErrorMessage, "paused")
}

package cudadocker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCUDASandboxPrepareEnvironment(t *testing.T) {
	sandbox := NewCUDASandbox()

	env, err := sandbox.PrepareEnvironment([]int{0, 2})
	require.NoError(t, err)

	assert.Equal(t, "0,2", env["NVIDIA_VISIBLE_DEVICES"])
	assert.Equal(t, "compute,utility", env["NVIDIA_DRIVER_CAPABILITIES"])
	assert.NotContains(t, env, "CUDA_VISIBLE_DEVICES")
}

func TestCUDASandboxRejectsEmptyAllocation(t *testing.T) {
	sandbox := NewCUDASandbox()

	_, err := sandbox.PrepareEnvironment(nil)
	assert.Error(t, err)

	_, err = sandbox.GetDeviceMounts(nil)
	assert.Error(t, err)
}

func TestCUDASandboxRejectsNegativeIndex(t *testing.T) {
	sandbox := NewCUDASandbox()

	_, err := sandbox.PrepareEnvironment([]int{-1})
	assert.Error(t, err)
}

func TestCUDASandboxDeviceMounts(t *testing.T) {
	sandbox := NewCUDASandbox()

	mounts, err := sandbox.GetDeviceMounts([]int{1})
	require.NoError(t, err)

	assert.Contains(t, mounts, "/dev/nvidia1")
	assert.Contains(t, mounts, "/dev/nvidiactl")
	assert.Contains(t, mounts, "/dev/nvidia-uvm")
}

func TestCUDASandboxRuntimeAndPrivileges(t *testing.T) {
	sandbox := NewCUDASandbox()

	assert.Equal(t, "nvidia", sandbox.GetDockerRuntime())
	assert.False(t, sandbox.RequiresPrivileged())
	assert.Empty(t, sandbox.GetAdditionalMounts())
}

func TestCUDASandboxSupports(t *testing.T) {
	sandbox := NewCUDASandbox()

	assert.True(t, sandbox.Supports("cuda"))
	assert.True(t, sandbox.Supports("cuda-ampere"))
	assert.True(t, sandbox.Supports("cuda-ada"))
	assert.False(t, sandbox.Supports("cpu"))
}

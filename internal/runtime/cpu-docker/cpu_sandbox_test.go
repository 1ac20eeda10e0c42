package cpudocker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUSandboxHasNoDevices(t *testing.T) {
	sandbox := NewCPUSandbox()

	env, err := sandbox.PrepareEnvironment(nil)
	require.NoError(t, err)
	assert.Empty(t, env)

	mounts, err := sandbox.GetDeviceMounts(nil)
	require.NoError(t, err)
	assert.Empty(t, mounts)

	assert.Equal(t, "runc", sandbox.GetDockerRuntime())
	assert.False(t, sandbox.RequiresPrivileged())
}

func TestCPUSandboxRejectsGPUIndices(t *testing.T) {
	sandbox := NewCPUSandbox()

	_, err := sandbox.PrepareEnvironment([]int{0})
	assert.Error(t, err)

	_, err = sandbox.GetDeviceMounts([]int{0})
	assert.Error(t, err)
}

func TestCPUSandboxSupports(t *testing.T) {
	sandbox := NewCPUSandbox()

	assert.True(t, sandbox.Supports("cpu"))
	assert.False(t, sandbox.Supports("cuda"))
}

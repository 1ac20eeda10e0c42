package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortAllocatorHandsOutDistinctPorts(t *testing.T) {
	alloc := NewPortAllocator()

	first, err := alloc.Allocate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, PortRangeStart)
	assert.LessOrEqual(t, first, PortRangeEnd)

	second, err := alloc.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestPortAllocatorReleaseMakesPortReusable(t *testing.T) {
	alloc := NewPortAllocator()

	port, err := alloc.Allocate()
	require.NoError(t, err)
	assert.True(t, alloc.IsUsed(port))

	alloc.Release(port)
	assert.False(t, alloc.IsUsed(port))
}

func TestPortAllocatorMarkUsedSkipsPort(t *testing.T) {
	alloc := NewPortAllocator()

	alloc.MarkUsed(PortRangeStart)
	assert.True(t, alloc.IsUsed(PortRangeStart))

	port, err := alloc.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, PortRangeStart, port)
}

func TestPortAllocatorIgnoresPortsOutsideRange(t *testing.T) {
	alloc := NewPortAllocator()

	alloc.MarkUsed(8080)
	assert.False(t, alloc.IsUsed(8080))
}

func TestGlobalPortAllocatorIsSingleton(t *testing.T) {
	assert.Same(t, GetGlobalPortAllocator(), GetGlobalPortAllocator())
}

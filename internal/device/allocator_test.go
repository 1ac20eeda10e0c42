package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGPUs() []DetectedGPU {
	return []DetectedGPU{
		{Index: 0, ModelName: "GeForce RTX 4090", BusAddress: "0000:01:00.0"},
		{Index: 1, ModelName: "GeForce RTX 4090", BusAddress: "0000:21:00.0"},
		{Index: 2, ModelName: "GeForce RTX 4090", BusAddress: "0000:41:00.0"},
	}
}

func TestSelectFree(t *testing.T) {
	gpus := testGPUs()

	// GPU 0 busy, so the lowest free indices are 1 and 2.
	got, err := selectFree(gpus, map[int]bool{0: true}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
}

func TestSelectFreeInsufficient(t *testing.T) {
	gpus := testGPUs()

	_, err := selectFree(gpus, map[int]bool{0: true, 2: true}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient free GPUs: requested 2, available 1")
}

func TestSelectExplicit(t *testing.T) {
	gpus := testGPUs()

	got, err := selectExplicit(gpus, map[int]bool{1: true}, []int{2, 0})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Order follows the request, not the index order.
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 0, got[1].Index)
}

func TestSelectExplicitConflict(t *testing.T) {
	_, err := selectExplicit(testGPUs(), map[int]bool{1: true}, []int{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPU 1 is already allocated")
}

func TestSelectExplicitUnknownIndex(t *testing.T) {
	_, err := selectExplicit(testGPUs(), map[int]bool{}, []int{7})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GPU index 7 does not exist")
}

func TestParseGPUIndices(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, ParseGPUIndices("0,1,2"))
	assert.Equal(t, []int{3}, ParseGPUIndices(" 3 "))
	assert.Nil(t, ParseGPUIndices(""))

	// Malformed entries are dropped, valid ones kept.
	assert.Equal(t, []int{0, 2}, ParseGPUIndices("0,x,2"))
}

func TestFormatGPUIndices(t *testing.T) {
	assert.Equal(t, "0,1,3", FormatGPUIndices([]int{3, 0, 1}))
	assert.Equal(t, "", FormatGPUIndices(nil))

	// The input slice must not be reordered in place.
	in := []int{2, 0}
	FormatGPUIndices(in)
	assert.Equal(t, []int{2, 0}, in)
}

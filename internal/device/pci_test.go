package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/api"
)

const lspciSample = `00:00.0 Host bridge [0600]: Intel Corporation Device [8086:7d14] (rev 04)
00:02.0 VGA compatible controller [0300]: Intel Corporation Raptor Lake-P [8086:a7a0] (rev 04)
01:00.0 VGA compatible controller [0300]: NVIDIA Corporation AD102 [GeForce RTX 4090] [10de:2684] (rev a1)
01:00.1 Audio device [0403]: NVIDIA Corporation AD102 High Definition Audio Controller [10de:22ba] (rev a1)
41:00.0 3D controller [0302]: NVIDIA Corporation GA100 [A100 SXM4 40GB] [10de:20b0] (rev a1)
`

func TestParseLspciOutput(t *testing.T) {
	devices := ParseLspciOutput(lspciSample)

	// The audio function and the host bridge must not survive the class
	// filter; the Intel iGPU does (vendor filtering happens later).
	require.Len(t, devices, 3)

	assert.Equal(t, "00:02.0", devices[0].BusAddress)
	assert.Equal(t, "0x8086", devices[0].VendorID)

	assert.Equal(t, "01:00.0", devices[1].BusAddress)
	assert.Equal(t, "0x10de", devices[1].VendorID)
	assert.Equal(t, "0x2684", devices[1].DeviceID)

	assert.Equal(t, "41:00.0", devices[2].BusAddress)
	assert.Equal(t, "0x20b0", devices[2].DeviceID)
}

func TestParseLspciLineRejectsGarbage(t *testing.T) {
	assert.Nil(t, parseLspciLine(""))
	assert.Nil(t, parseLspciLine("nonsense"))
	assert.Nil(t, parseLspciLine("01:00.0 VGA compatible controller without brackets"))
}

func TestIsDisplayClass(t *testing.T) {
	assert.True(t, isDisplayClass(PCIClassVGA))
	assert.True(t, isDisplayClass(PCIClass3D))
	assert.False(t, isDisplayClass("0x040300")) // audio
	assert.False(t, isDisplayClass("0x060000")) // host bridge
}

func TestLookupGPUModel(t *testing.T) {
	known := lookupGPUModel(NVIDIAVendorID, "0x2684")
	require.NotNil(t, known)
	assert.Equal(t, "GeForce RTX 4090", known.ModelName)
	assert.Equal(t, ConfigKeyCUDAAda, known.ConfigKey)
	assert.Equal(t, api.DeviceType("cuda-ada"), known.DeviceType())

	// Unknown NVIDIA devices map to the generic CUDA model.
	unknown := lookupGPUModel(NVIDIAVendorID, "0xffff")
	require.NotNil(t, unknown)
	assert.Equal(t, ConfigKeyCUDA, unknown.ConfigKey)
	assert.Contains(t, unknown.ModelName, "0xffff")

	// Non-NVIDIA vendors are not GPUs we serve on.
	assert.Nil(t, lookupGPUModel("0x8086", "0xa7a0"))
}

func TestSortAndIndexUsesBusOrder(t *testing.T) {
	gpus := sortAndIndex([]DetectedGPU{
		{BusAddress: "0000:41:00.0", ModelName: "A100 SXM4 40GB"},
		{BusAddress: "0000:01:00.0", ModelName: "GeForce RTX 4090"},
	})

	require.Len(t, gpus, 2)
	assert.Equal(t, 0, gpus[0].Index)
	assert.Equal(t, "GeForce RTX 4090", gpus[0].ModelName)
	assert.Equal(t, 1, gpus[1].Index)
	assert.Equal(t, "A100 SXM4 40GB", gpus[1].ModelName)
}

func TestSupportedDeviceTypes(t *testing.T) {
	types := SupportedDeviceTypes()

	assert.Contains(t, types, api.DeviceType(ConfigKeyCUDAAmpere))
	assert.Contains(t, types, api.DeviceType(ConfigKeyCUDAHopper))
	assert.Contains(t, types, api.DeviceType(ConfigKeyCUDA))
	assert.Contains(t, types, api.DeviceTypeCPU)

	// No duplicates even though many models share a generation.
	seen := make(map[api.DeviceType]bool)
	for _, dt := range types {
		assert.False(t, seen[dt], "duplicate device type %s", dt)
		seen[dt] = true
	}
}

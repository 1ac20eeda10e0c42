// Package device provides NVIDIA GPU detection and allocation.
package device

import (
	"fmt"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
)

// GPUModel describes a known GPU model by its PCI device ID.
type GPUModel struct {
	// VendorID is the PCI vendor ID
	VendorID string

	// DeviceID is the PCI device ID
	DeviceID string

	// ModelName is the human-readable model name
	ModelName string

	// ConfigKey groups the model by compute generation (e.g., "cuda-ada")
	ConfigKey string

	// Generation is the architecture name (e.g., "ada")
	Generation string

	// VRAMGB is the GPU memory in GB
	VRAMGB int
}

// DeviceType returns the api device type for this model.
func (g GPUModel) DeviceType() api.DeviceType {
	return api.DeviceType(g.ConfigKey)
}

// KnownGPUs is the compiled-in table of NVIDIA GPU models, keyed by their
// PCI device ID. It covers the models the service is routinely deployed on;
// the devices.yaml catalog extends it without a code change.
var KnownGPUs = []GPUModel{
	// Volta
	{NVIDIAVendorID, "0x1db1", "Tesla V100 SXM2 16GB", ConfigKeyCUDAVolta, "volta", 16},
	{NVIDIAVendorID, "0x1db4", "Tesla V100 PCIe 16GB", ConfigKeyCUDAVolta, "volta", 16},
	{NVIDIAVendorID, "0x1db5", "Tesla V100 SXM2 32GB", ConfigKeyCUDAVolta, "volta", 32},

	// Turing
	{NVIDIAVendorID, "0x1e04", "GeForce RTX 2080 Ti", ConfigKeyCUDATuring, "turing", 11},
	{NVIDIAVendorID, "0x1eb8", "Tesla T4", ConfigKeyCUDATuring, "turing", 16},

	// Ampere
	{NVIDIAVendorID, "0x20b0", "A100 SXM4 40GB", ConfigKeyCUDAAmpere, "ampere", 40},
	{NVIDIAVendorID, "0x20b2", "A100 SXM4 80GB", ConfigKeyCUDAAmpere, "ampere", 80},
	{NVIDIAVendorID, "0x20b5", "A100 PCIe 80GB", ConfigKeyCUDAAmpere, "ampere", 80},
	{NVIDIAVendorID, "0x20b7", "A30", ConfigKeyCUDAAmpere, "ampere", 24},
	{NVIDIAVendorID, "0x2204", "GeForce RTX 3090", ConfigKeyCUDAAmpere, "ampere", 24},
	{NVIDIAVendorID, "0x2230", "RTX A6000", ConfigKeyCUDAAmpere, "ampere", 48},
	{NVIDIAVendorID, "0x2236", "A10", ConfigKeyCUDAAmpere, "ampere", 24},
	{NVIDIAVendorID, "0x2484", "GeForce RTX 3070", ConfigKeyCUDAAmpere, "ampere", 8},

	// Ada Lovelace
	{NVIDIAVendorID, "0x2684", "GeForce RTX 4090", ConfigKeyCUDAAda, "ada", 24},
	{NVIDIAVendorID, "0x2704", "GeForce RTX 4080", ConfigKeyCUDAAda, "ada", 16},
	{NVIDIAVendorID, "0x26b5", "L40", ConfigKeyCUDAAda, "ada", 48},
	{NVIDIAVendorID, "0x26b9", "L40S", ConfigKeyCUDAAda, "ada", 48},
	{NVIDIAVendorID, "0x27b8", "L4", ConfigKeyCUDAAda, "ada", 24},

	// Hopper
	{NVIDIAVendorID, "0x2330", "H100 SXM5 80GB", ConfigKeyCUDAHopper, "hopper", 80},
	{NVIDIAVendorID, "0x2331", "H100 PCIe 80GB", ConfigKeyCUDAHopper, "hopper", 80},
}

// ExtraGPUs loads and caches operator-provided GPU models from the device
// catalog file at package initialization.
var ExtraGPUs = LoadGPUModelsFromConfig()

// LoadGPUModelsFromConfig loads additional GPU models from the device
// catalog file.
//
// Returns:
//   - Slice of GPUModel structs
//   - Empty slice if the catalog is absent or cannot be loaded
func LoadGPUModelsFromConfig() []GPUModel {
	devConfig, err := config.LoadDevicesConfig("")
	if err != nil {
		logger.Warn("Failed to load device catalog: %v", err)
		return []GPUModel{}
	}

	var gpus []GPUModel
	for _, gpu := range devConfig.GPUs {
		gpus = append(gpus, GPUModel{
			VendorID:   gpu.VendorID,
			DeviceID:   gpu.DeviceID,
			ModelName:  gpu.ModelName,
			ConfigKey:  gpu.ConfigKey,
			Generation: gpu.Generation,
			VRAMGB:     gpu.VRAMGB,
		})
	}

	if len(gpus) > 0 {
		logger.Debug("Loaded %d GPU model(s) from device catalog", len(gpus))
	}
	return gpus
}

// lookupGPUModel finds the GPU model for a PCI vendor/device ID pair.
//
// Catalog entries take precedence over the compiled-in table so operators
// can correct a wrong entry. NVIDIA display devices that appear in neither
// are mapped to a generic model: an unknown GeForce is still a CUDA device
// worth serving on.
//
// Returns nil for non-NVIDIA vendors.
func lookupGPUModel(vendorID, deviceID string) *GPUModel {
	for i := range ExtraGPUs {
		if ExtraGPUs[i].VendorID == vendorID && ExtraGPUs[i].DeviceID == deviceID {
			return &ExtraGPUs[i]
		}
	}
	for i := range KnownGPUs {
		if KnownGPUs[i].VendorID == vendorID && KnownGPUs[i].DeviceID == deviceID {
			return &KnownGPUs[i]
		}
	}

	if vendorID == NVIDIAVendorID {
		return &GPUModel{
			VendorID:  vendorID,
			DeviceID:  deviceID,
			ModelName: fmt.Sprintf("NVIDIA GPU (device %s)", deviceID),
			ConfigKey: ConfigKeyCUDA,
		}
	}

	return nil
}

// SupportedDeviceTypes returns the device types the daemon understands:
// every generation in the compiled-in table plus the generic and CPU types.
func SupportedDeviceTypes() []api.DeviceType {
	seen := make(map[string]bool)
	var types []api.DeviceType

	for _, gpu := range KnownGPUs {
		if !seen[gpu.ConfigKey] {
			seen[gpu.ConfigKey] = true
			types = append(types, api.DeviceType(gpu.ConfigKey))
		}
	}

	types = append(types, api.DeviceType(ConfigKeyCUDA), api.DeviceTypeCPU)
	return types
}

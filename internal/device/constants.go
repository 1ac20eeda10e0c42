// Package device provides NVIDIA GPU detection and allocation.
package device

// PCI identifiers used during GPU discovery.
const (
	// NVIDIAVendorID is the PCI vendor ID for NVIDIA devices.
	NVIDIAVendorID = "0x10de"

	// PCIClassVGA is the PCI class of VGA-compatible display controllers.
	PCIClassVGA = "0x030000"

	// PCIClass3D is the PCI class of 3D controllers (headless datacenter
	// GPUs such as A100/H100 report this class).
	PCIClass3D = "0x030200"
)

// GPU configuration keys, grouped by compute generation. Variant selection
// and capability reporting key off the generation, not the exact model.
const (
	// ConfigKeyCUDAVolta is the configuration key for Volta GPUs (V100)
	ConfigKeyCUDAVolta = "cuda-volta"

	// ConfigKeyCUDATuring is the configuration key for Turing GPUs (T4, RTX 20xx)
	ConfigKeyCUDATuring = "cuda-turing"

	// ConfigKeyCUDAAmpere is the configuration key for Ampere GPUs (A100, RTX 30xx)
	ConfigKeyCUDAAmpere = "cuda-ampere"

	// ConfigKeyCUDAAda is the configuration key for Ada Lovelace GPUs (L40, RTX 40xx)
	ConfigKeyCUDAAda = "cuda-ada"

	// ConfigKeyCUDAHopper is the configuration key for Hopper GPUs (H100)
	ConfigKeyCUDAHopper = "cuda-hopper"

	// ConfigKeyCUDA is the generic key for NVIDIA GPUs whose exact model
	// is not in the table. They still get CUDA serving, without
	// generation-specific hints.
	ConfigKeyCUDA = "cuda"
)

package device

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/heartmula/mula/internal/api"
)

// PCIDevice represents a PCI device with its identifiers
type PCIDevice struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de")
	VendorID string

	// DeviceID is the PCI device ID
	DeviceID string

	// BusAddress is the PCI bus address (e.g., "0000:01:00.0")
	BusAddress string

	// Class is the PCI device class
	Class string
}

// DetectedGPU represents a detected NVIDIA GPU with full information.
type DetectedGPU struct {
	// Index is the GPU index as CUDA sees it with PCI bus ordering
	Index int `json:"index"`

	// VendorID is the PCI vendor ID
	VendorID string `json:"vendor_id"`

	// DeviceID is the PCI device ID
	DeviceID string `json:"device_id"`

	// BusAddress is the PCI bus address
	BusAddress string `json:"bus_address"`

	// ModelName is the GPU model name
	ModelName string `json:"model_name"`

	// ConfigKey is the generation key used in configuration
	ConfigKey string `json:"config_key"`

	// DeviceType is the mula device type
	DeviceType api.DeviceType `json:"device_type"`

	// Generation is the compute architecture name
	Generation string `json:"generation,omitempty"`

	// VRAMGB is the GPU memory in GB, 0 when unknown
	VRAMGB int `json:"vram_gb,omitempty"`
}

// ScanPCIDevices scans the system for PCI devices.
//
// Reads device information from /sys/bus/pci/devices, the standard
// location on Linux systems.
//
// Returns:
//   - Slice of PCIDevice found on the system
//   - Error if scanning fails
func ScanPCIDevices() ([]PCIDevice, error) {
	const pciDevicesPath = "/sys/bus/pci/devices"

	if _, err := os.Stat(pciDevicesPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("PCI devices path not found: %s", pciDevicesPath)
	}

	entries, err := os.ReadDir(pciDevicesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCI devices: %w", err)
	}

	var devices []PCIDevice
	for _, entry := range entries {
		devicePath := filepath.Join(pciDevicesPath, entry.Name())
		device, err := readPCIDevice(devicePath, entry.Name())
		if err != nil {
			// Don't fail on individual device read errors
			continue
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// readPCIDevice reads PCI device information from sysfs
func readPCIDevice(devicePath, busAddress string) (PCIDevice, error) {
	device := PCIDevice{
		BusAddress: busAddress,
	}

	vendorID, err := readPCIFile(filepath.Join(devicePath, "vendor"))
	if err != nil {
		return device, err
	}
	device.VendorID = vendorID

	deviceID, err := readPCIFile(filepath.Join(devicePath, "device"))
	if err != nil {
		return device, err
	}
	device.DeviceID = deviceID

	if class, err := readPCIFile(filepath.Join(devicePath, "class")); err == nil {
		device.Class = class
	}

	return device, nil
}

// readPCIFile reads a single line from a PCI sysfs file
func readPCIFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// isDisplayClass reports whether a PCI class marks a display or 3D
// controller, the two classes NVIDIA GPUs appear under.
func isDisplayClass(class string) bool {
	return strings.HasPrefix(class, "0x0300") || strings.HasPrefix(class, "0x0302")
}

// FindGPUs scans the system for NVIDIA GPUs.
//
// Scans sysfs first; when sysfs is unavailable (restricted containers),
// falls back to parsing `lspci -nn` output. Detected GPUs are sorted by
// bus address and indexed in that order, which matches CUDA's
// PCI_BUS_ID device ordering.
//
// Returns:
//   - Slice of DetectedGPU, empty when the host has no NVIDIA GPU
//   - Error when no scan method works at all
func FindGPUs() ([]DetectedGPU, error) {
	devices, err := ScanPCIDevices()
	if err != nil {
		devices, err = scanViaLspci()
		if err != nil {
			return nil, fmt.Errorf("failed to scan PCI devices: %w", err)
		}
	}

	var gpus []DetectedGPU
	for _, dev := range devices {
		if dev.VendorID != NVIDIAVendorID {
			continue
		}
		// sysfs entries carry the class; lspci entries were already
		// filtered to display controllers.
		if dev.Class != "" && !isDisplayClass(dev.Class) {
			continue
		}

		model := lookupGPUModel(dev.VendorID, dev.DeviceID)
		if model == nil {
			continue
		}

		gpus = append(gpus, DetectedGPU{
			VendorID:   dev.VendorID,
			DeviceID:   dev.DeviceID,
			BusAddress: dev.BusAddress,
			ModelName:  model.ModelName,
			ConfigKey:  model.ConfigKey,
			DeviceType: model.DeviceType(),
			Generation: model.Generation,
			VRAMGB:     model.VRAMGB,
		})
	}

	return sortAndIndex(gpus), nil
}

// sortAndIndex orders GPUs by PCI bus address and assigns sequential
// indices, matching CUDA_DEVICE_ORDER=PCI_BUS_ID.
func sortAndIndex(gpus []DetectedGPU) []DetectedGPU {
	sort.Slice(gpus, func(i, j int) bool {
		return gpus[i].BusAddress < gpus[j].BusAddress
	})
	for i := range gpus {
		gpus[i].Index = i
	}
	return gpus
}

// scanViaLspci lists PCI display devices via the lspci tool.
//
// Fallback for environments where /sys/bus/pci is not mounted.
func scanViaLspci() ([]PCIDevice, error) {
	path, err := exec.LookPath("lspci")
	if err != nil {
		return nil, fmt.Errorf("lspci not found: %w", err)
	}

	output, err := exec.Command(path, "-nn").Output()
	if err != nil {
		return nil, fmt.Errorf("lspci failed: %w", err)
	}

	return ParseLspciOutput(string(output)), nil
}

// ParseLspciOutput parses the output of `lspci -nn`, keeping only display
// and 3D controllers.
//
// The expected line format is:
//
//	01:00.0 VGA compatible controller [0300]: NVIDIA Corporation AD102 [GeForce RTX 4090] [10de:2684] (rev a1)
//
// Parameters:
//   - output: The output from lspci -nn
//
// Returns:
//   - Slice of PCIDevice parsed from the output
func ParseLspciOutput(output string) []PCIDevice {
	var devices []PCIDevice

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "VGA compatible controller") &&
			!strings.Contains(line, "3D controller") {
			continue
		}
		if device := parseLspciLine(line); device != nil {
			devices = append(devices, *device)
		}
	}

	return devices
}

// parseLspciLine parses a single line from lspci -nn output
func parseLspciLine(line string) *PCIDevice {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil
	}

	device := &PCIDevice{
		BusAddress: fields[0],
	}

	// The device IDs are the last [vid:did] bracket pair on the line
	// (earlier brackets hold the class code and the model name).
	idEnd := strings.LastIndex(line, "]")
	if idEnd == -1 {
		return nil
	}
	idStart := strings.LastIndex(line[:idEnd], "[")
	if idStart == -1 {
		return nil
	}

	ids := strings.Split(line[idStart+1:idEnd], ":")
	if len(ids) != 2 {
		return nil
	}

	device.VendorID = "0x" + strings.TrimSpace(ids[0])
	device.DeviceID = "0x" + strings.TrimSpace(ids[1])

	return device
}

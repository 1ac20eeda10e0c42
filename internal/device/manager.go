// Package device provides NVIDIA GPU detection and management.
//
// This package handles discovery of the GPUs a host offers for serving:
//   - PCI-based hardware detection (sysfs, lspci fallback)
//   - A compiled-in GPU model table, extendable via devices.yaml
//   - Dynamic GPU allocation derived from container labels
//   - Thread-safe access to device information
//
// Detection identifies GPUs by PCI IDs only. Driver state, real VRAM and
// utilization belong to vendor tooling; for placement decisions the model
// and generation are enough.
package device

import (
	"fmt"
	"sync"

	"github.com/heartmula/mula/internal/api"
)

// Device represents detected hardware of one device type with its metadata.
//
// GPUs of the same model/generation are grouped into a single Device entry;
// the Properties map carries the per-type aggregate (count, generation,
// VRAM). Placement logic that needs individual GPUs uses the Allocator
// instead.
type Device struct {
	// Type is the device type identifying the compute generation.
	// Example: "cuda-ada"
	Type api.DeviceType `json:"type"`

	// Name is the human-readable device name.
	// Example: "GeForce RTX 4090"
	Name string `json:"name"`

	// Available indicates if the device is currently usable.
	Available bool `json:"available"`

	// Properties contains device-specific metadata.
	// Common keys: "count", "generation", "vram_gb"
	Properties map[string]string `json:"properties"`
}

// Manager performs device detection and maintains the detected set.
//
// The Manager provides thread-safe access to information about detected
// hardware. Detection runs synchronously at creation so device information
// is available immediately after NewManager returns.
type Manager struct {
	// mu provides thread-safe access to the devices map.
	mu sync.RWMutex

	// devices maps device types to their detected instances.
	devices map[api.DeviceType]*Device
}

// NewManager creates and initializes a new device manager.
//
// Returns:
//   - A pointer to a fully initialized Manager with detected devices.
//
// Example:
//
//	manager := device.NewManager()
//	if !manager.HasGPU() {
//	    fmt.Println("no NVIDIA GPU detected, using the cpu variant")
//	}
func NewManager() *Manager {
	m := &Manager{
		devices: make(map[api.DeviceType]*Device),
	}
	m.detectDevices()
	return m
}

// detectDevices probes the system and fills the devices map.
//
// GPUs are grouped by device type (compute generation); a host with four
// identical A100s yields one entry with count=4. Scan failures leave the
// map empty rather than crashing: a GPU-less host is a valid deployment
// target for the cpu variant.
func (m *Manager) detectDevices() {
	gpus, err := FindGPUs()
	if err != nil {
		return
	}

	byType := make(map[api.DeviceType][]DetectedGPU)
	for _, gpu := range gpus {
		byType[gpu.DeviceType] = append(byType[gpu.DeviceType], gpu)
	}

	for deviceType, group := range byType {
		first := group[0]
		m.devices[deviceType] = &Device{
			Type:      deviceType,
			Name:      first.ModelName,
			Available: true,
			Properties: map[string]string{
				"count":      fmt.Sprintf("%d", len(group)),
				"generation": first.Generation,
				"vram_gb":    fmt.Sprintf("%d", first.VRAMGB),
			},
		}
	}
}

// ListAvailable returns all currently available devices.
//
// The method is thread-safe and can be called concurrently.
//
// Returns:
//   - A slice of pointers to Device structs for all available devices.
//     Returns an empty slice if no devices are available.
func (m *Manager) ListAvailable() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Device
	for _, device := range m.devices {
		if device.Available {
			result = append(result, device)
		}
	}

	return result
}

// HasGPU reports whether any NVIDIA GPU was detected on the host.
//
// Used to decide between GPU and CPU variants when a start request does
// not name one.
func (m *Manager) HasGPU() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, device := range m.devices {
		if device.Available {
			return true
		}
	}
	return false
}

// IsAvailable checks if a specific device type is currently available.
//
// Parameters:
//   - deviceType: The device type to check (e.g., ConfigKeyCUDAAda)
//
// Returns:
//   - true if the device type exists and is available
//   - false if the device doesn't exist or is unavailable
func (m *Manager) IsAvailable(deviceType api.DeviceType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[deviceType]
	if !exists {
		return false
	}

	return device.Available
}

// GetDevice retrieves detailed information for a specific device type.
//
// Unlike IsAvailable(), this returns detailed information even if the
// device is unavailable, allowing callers to determine why.
//
// Parameters:
//   - deviceType: The device type to retrieve information for
//
// Returns:
//   - A pointer to the Device struct if the device type is detected
//   - An error if the device type was not detected on the system
func (m *Manager) GetDevice(deviceType api.DeviceType) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[deviceType]
	if !exists {
		return nil, fmt.Errorf("device type %s not found", deviceType)
	}

	return device, nil
}

// GetSupportedTypes returns all device types the daemon is designed to
// work with, regardless of whether they are detected on this host. Useful
// for help text and configuration validation.
func (m *Manager) GetSupportedTypes() []api.DeviceType {
	return SupportedDeviceTypes()
}

// GetDetectedDeviceTypes returns the types of all detected devices.
//
// Used to annotate model listings with what the current host can serve.
// Hosts without a GPU report the CPU type so callers always get a
// non-empty answer.
func (m *Manager) GetDetectedDeviceTypes() []api.DeviceType {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var types []api.DeviceType
	for deviceType, device := range m.devices {
		if device.Available {
			types = append(types, deviceType)
		}
	}

	if len(types) == 0 {
		types = append(types, api.DeviceTypeCPU)
	}

	return types
}

// ListDetectedGPUs returns detailed information for all detected GPUs.
//
// This performs a fresh scan and returns one entry per physical GPU with
// PCI addresses and indices, unlike ListAvailable() which aggregates by
// type.
//
// Returns:
//   - A slice of DetectedGPU with details for each physical GPU
//   - An error if hardware scanning fails
func (m *Manager) ListDetectedGPUs() ([]DetectedGPU, error) {
	gpus, err := FindGPUs()
	if err != nil {
		return nil, fmt.Errorf("failed to scan GPUs: %w", err)
	}
	return gpus, nil
}

// Package config - devices.go implements GPU model catalog loading.
//
// The compiled-in GPU table (internal/device) covers the common NVIDIA
// models; this file lets operators teach the daemon about additional PCI
// device IDs without a code change.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DevicesFileName is the name of the GPU model catalog file.
	DevicesFileName = "devices.yaml"
)

// GPUModelConfig describes one GPU model by its PCI identifiers.
type GPUModelConfig struct {
	// VendorID is the PCI vendor ID (e.g., "0x10de").
	VendorID string `yaml:"vendor_id" validate:"required"`

	// DeviceID is the PCI device ID (e.g., "0x2684").
	DeviceID string `yaml:"device_id" validate:"required"`

	// ModelName is the human-readable model name (e.g., "GeForce RTX 4090").
	ModelName string `yaml:"model_name" validate:"required"`

	// ConfigKey groups the model by compute generation
	// (e.g., "cuda-ada"). Used as the device type.
	ConfigKey string `yaml:"config_key" validate:"required"`

	// Generation is the architecture name (e.g., "ada").
	Generation string `yaml:"generation,omitempty"`

	// VRAMGB is the GPU memory in GB.
	VRAMGB int `yaml:"vram_gb,omitempty"`
}

// DevicesConfig is the on-disk GPU model catalog.
type DevicesConfig struct {
	GPUs []GPUModelConfig `yaml:"gpus" validate:"dive"`
}

// LoadDevicesConfig loads the GPU model catalog from the given path, or
// from devices.yaml in the default config directory when path is empty.
//
// A missing file is not an error: the compiled-in table covers the common
// models, and the file only extends it.
func LoadDevicesConfig(path string) (*DevicesConfig, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		path = filepath.Join(homeDir, DefaultConfigDirName, DevicesFileName)
	}

	if _, err := os.Stat(path); err != nil {
		return &DevicesConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device catalog: %w", err)
	}

	var cfg DevicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse device catalog: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid device catalog: %w", err)
	}

	return &cfg, nil
}

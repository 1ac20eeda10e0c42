package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	// BaseImagesFileName is the name of the base images configuration file.
	BaseImagesFileName = "base_images.yaml"

	// StageFrontend identifies the frontend asset build stage.
	StageFrontend = "frontend"

	// StageRuntime identifies the final runtime stage.
	StageRuntime = "runtime"
)

// BaseImagesConfig maps variant names to per-stage, per-architecture base
// image references. It backs variants whose spec leaves the stage image
// empty, so multi-arch deployments can pick the right base without
// duplicating the whole variant.
//
// Structure:
//   - Key: variant name (e.g., "cuda", "cpu")
//   - Value: map of stage name ("frontend", "runtime") to
//     architecture-specific images
//
// Example YAML:
//
//	cuda:
//	  frontend:
//	    amd64: node:20-bookworm-slim
//	    arm64: node:20-bookworm-slim
//	  runtime:
//	    amd64: nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04
//	    arm64: nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04
type BaseImagesConfig map[string]map[string]map[string]string

// GetDefaultBaseImagesConfig returns the default base image configuration
// for all built-in variants and both supported architectures.
func GetDefaultBaseImagesConfig() BaseImagesConfig {
	return BaseImagesConfig{
		"cuda": {
			StageFrontend: {
				"amd64": "node:20-bookworm-slim",
				"arm64": "node:20-bookworm-slim",
			},
			StageRuntime: {
				"amd64": "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
				"arm64": "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
			},
		},
		"cuda-lite": {
			StageFrontend: {
				"amd64": "node:20-bookworm-slim",
				"arm64": "node:20-bookworm-slim",
			},
			StageRuntime: {
				"amd64": "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
				"arm64": "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
			},
		},
		"cpu": {
			StageFrontend: {
				"amd64": "node:20-bookworm-slim",
				"arm64": "node:20-bookworm-slim",
			},
			StageRuntime: {
				"amd64": "python:3.11-slim-bookworm",
				"arm64": "python:3.11-slim-bookworm",
			},
		},
	}
}

// GetOrCreateBaseImagesConfig gets the base image configuration from file
// or creates the file with defaults if it doesn't exist.
//
// Returns:
//   - BaseImagesConfig instance (either loaded from file or default)
//   - Error if file operations fail
func (c *Config) GetOrCreateBaseImagesConfig() (BaseImagesConfig, error) {
	confPath := filepath.Join(c.Storage.ConfigDir, BaseImagesFileName)

	if _, err := os.Stat(confPath); err == nil {
		return loadBaseImagesConfig(confPath)
	}

	config := GetDefaultBaseImagesConfig()

	if err := writeBaseImagesConfig(confPath, config); err != nil {
		return nil, fmt.Errorf("failed to write base images config: %w", err)
	}

	return config, nil
}

func loadBaseImagesConfig(path string) (BaseImagesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read base images config: %w", err)
	}

	var config BaseImagesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse base images config: %w", err)
	}

	return config, nil
}

func writeBaseImagesConfig(path string, config BaseImagesConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal base images config: %w", err)
	}

	header := `# Mula Base Images Configuration
# This file maps image variants to their per-stage base images for
# different CPU architectures.
#
# Structure:
#   <variant>:
#     <stage>:            # "frontend" or "runtime"
#       <architecture>: <image reference>
#
# These entries are consulted when a variant in variants.yaml leaves its
# frontend_image or base_image field empty. The daemon selects the entry
# matching the current system architecture.
#

`
	content := header + string(data)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write base images config file: %w", err)
	}

	return nil
}

// GetImageForStage returns the base image for a variant's stage on the
// given architecture.
//
// Parameters:
//   - config: BaseImagesConfig to query
//   - variant: Variant name (e.g., "cuda")
//   - stage: Stage name ("frontend" or "runtime")
//   - arch: CPU architecture ("amd64" or "arm64")
//
// Returns:
//   - Image reference if found
//   - Error if the variant, stage or architecture is not configured
func GetImageForStage(config BaseImagesConfig, variant, stage, arch string) (string, error) {
	stageMap, ok := config[variant]
	if !ok {
		return "", fmt.Errorf("variant %s not found in base images configuration", variant)
	}

	archMap, ok := stageMap[stage]
	if !ok {
		return "", fmt.Errorf("stage %s not found for variant %s", stage, variant)
	}

	image, ok := archMap[arch]
	if !ok {
		return "", fmt.Errorf("architecture %s not found for variant %s stage %s", arch, variant, stage)
	}

	return image, nil
}

// GetImageForStageAuto resolves the base image for the current system
// architecture.
func GetImageForStageAuto(config BaseImagesConfig, variant, stage string) (string, error) {
	arch, err := GetSystemArchitecture()
	if err != nil {
		return "", fmt.Errorf("failed to detect system architecture: %w", err)
	}

	return GetImageForStage(config, variant, stage, arch)
}

// GetSystemArchitecture returns the current system's CPU architecture in a
// format compatible with Docker platform naming.
//
// Returns:
//   - Architecture string ("arm64" or "amd64")
//   - Error if the architecture is not supported
func GetSystemArchitecture() (string, error) {
	switch runtime.GOARCH {
	case "arm64", "aarch64":
		return "arm64", nil
	case "amd64", "x86_64":
		return "amd64", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", runtime.GOARCH)
	}
}

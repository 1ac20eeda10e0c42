// Package config - models_catalog.go implements model catalog loading.
//
// This module provides a flexible configuration system for HeartMuLa
// checkpoint definitions. Model entries are loaded from YAML files, allowing
// new checkpoints to be added without code changes. The compiled-in registry
// (internal/models) is extended or overridden by the file contents.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// ModelsFileName is the name of the model catalog file.
	ModelsFileName = "models.yaml"
)

// ModelSourceType represents where checkpoint weights come from.
type ModelSourceType string

const (
	// SourceTypeHuggingFace downloads weights from the HuggingFace Hub.
	SourceTypeHuggingFace ModelSourceType = "huggingface"

	// SourceTypeLocal uses weights already present on the filesystem.
	SourceTypeLocal ModelSourceType = "local"
)

// ModelSource defines where and how to obtain checkpoint weights.
type ModelSource struct {
	// SourceType specifies the source platform/method.
	SourceType ModelSourceType `yaml:"source_type" validate:"required,oneof=huggingface local"`

	// SourceID is the identifier within the source platform.
	// Example: "heartmula/heartmula-3b" (HuggingFace repo id)
	SourceID string `yaml:"source_id" validate:"required"`

	// Revision pins the upstream revision (branch, tag or commit).
	// Empty means "main".
	Revision string `yaml:"revision,omitempty"`
}

// ModelConfig defines configuration for one HeartMuLa checkpoint.
type ModelConfig struct {
	// ModelID is the unique identifier for this model.
	// Convention: lowercase, hyphen-separated (e.g., "heartmula-3b").
	ModelID string `yaml:"model_id" validate:"required"`

	// ModelName is the human-readable display name.
	// Example: "HeartMuLa 3B"
	ModelName string `yaml:"model_name,omitempty"`

	// Family groups related checkpoints (e.g., "heartmula", "heartcodec").
	Family string `yaml:"family,omitempty"`

	// Description provides detailed information about the checkpoint.
	Description string `yaml:"description,omitempty"`

	// Source defines where to obtain the weights.
	Source ModelSource `yaml:"source"`

	// Parameters is the model size in billions of parameters.
	Parameters float64 `yaml:"parameters,omitempty"`

	// RequiredVRAMGB is the minimum GPU memory in GB for full-precision
	// serving. Hosts below this should use the cuda-lite variant.
	RequiredVRAMGB int `yaml:"required_vram_gb,omitempty"`

	// SupportsFourBit indicates the checkpoint can be loaded quantized.
	SupportsFourBit bool `yaml:"supports_four_bit"`

	// DefaultVariant is the image variant used when a start request does
	// not name one. Empty falls back to the build default.
	DefaultVariant string `yaml:"default_variant,omitempty"`
}

// ModelsConfig is the on-disk model catalog.
type ModelsConfig struct {
	Models []ModelConfig `yaml:"models" validate:"dive"`
}

// LoadModelsConfig loads the model catalog from the given path, or from
// models.yaml in the default config directory when path is empty.
//
// A missing file is not an error: the compiled-in registry covers the
// built-in checkpoints, and the file only extends it.
//
// Returns:
//   - Parsed catalog (possibly empty)
//   - Error if the file exists but cannot be read or parsed
func LoadModelsConfig(path string) (*ModelsConfig, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		path = filepath.Join(homeDir, DefaultConfigDirName, ModelsFileName)
	}

	if _, err := os.Stat(path); err != nil {
		return &ModelsConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}

	var cfg ModelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid model catalog: %w", err)
	}

	return &cfg, nil
}

// LoadModelsConfigFromDir loads models.yaml from an explicit config
// directory. Used by the daemon, which may run with a custom --config-dir.
func LoadModelsConfigFromDir(configDir string) (*ModelsConfig, error) {
	return LoadModelsConfig(filepath.Join(configDir, ModelsFileName))
}

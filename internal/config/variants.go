// Package config - variants.go implements the image variant catalog.
//
// This module provides a flexible configuration system for the runtime image
// variants. Variant definitions are loaded from YAML files, allowing the
// recipes (base images, installed packages, library patches, environment
// defaults) to be adjusted without code changes.
//
// Every variant describes the same two-stage image: a frontend build stage
// that produces static assets, and a runtime stage that installs the Python
// runtime, patches conflicting ML libraries, copies the application code and
// defines startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/heartmula/mula/internal/logger"
)

const (
	// VariantsFileName is the name of the variant catalog file.
	VariantsFileName = "variants.yaml"
)

// LibraryPatch describes one symlink applied after dependency installation
// to reconcile conflicting shared library versions.
//
// Patches with Optional set render as "ln -sf TARGET LINK || true" so a
// missing target (a library absent in slimmer bases) does not fail the
// build; required patches fail the build when the target is missing.
type LibraryPatch struct {
	// Link is the absolute path of the symlink to create.
	Link string `yaml:"link" validate:"required"`

	// Target is the symlink target (absolute or relative to Link's dir).
	Target string `yaml:"target" validate:"required"`

	// Optional tolerates a missing target during the build.
	Optional bool `yaml:"optional,omitempty"`
}

// HealthcheckSpec configures the image-level HEALTHCHECK instruction.
type HealthcheckSpec struct {
	// Interval between probes (Docker duration, e.g., "30s").
	Interval string `yaml:"interval,omitempty"`

	// Timeout for a single probe.
	Timeout string `yaml:"timeout,omitempty"`

	// StartPeriod grants the service warmup time before failures count.
	// Model loading dominates startup, so this defaults high.
	StartPeriod string `yaml:"start_period,omitempty"`

	// Retries before the container is marked unhealthy.
	Retries int `yaml:"retries,omitempty"`
}

// VariantSpec defines one runtime image variant.
//
// A variant fully determines the rendered Dockerfile and the runtime
// defaults of containers started from the built image.
type VariantSpec struct {
	// Name is the unique variant identifier.
	// Convention: lowercase, hyphen-separated (e.g., "cuda", "cuda-lite").
	Name string `yaml:"name" validate:"required"`

	// Description is the human-readable summary.
	Description string `yaml:"description,omitempty"`

	// FrontendImage is the base image of the frontend build stage.
	// Empty falls back to the base image catalog for the current arch.
	FrontendImage string `yaml:"frontend_image,omitempty"`

	// BaseImage is the base image of the runtime stage.
	// Empty falls back to the base image catalog for the current arch.
	BaseImage string `yaml:"base_image,omitempty"`

	// RequiresGPU indicates instances need GPU access (device requests,
	// nvidia runtime).
	RequiresGPU bool `yaml:"requires_gpu"`

	// AptPackages are installed in the runtime stage before pip.
	AptPackages []string `yaml:"apt_packages,omitempty"`

	// PipRequirements is the context-relative requirements file installed
	// in the runtime stage (e.g., "backend/requirements.txt").
	PipRequirements string `yaml:"pip_requirements,omitempty"`

	// PipPackages are extra explicit pip installs applied after the
	// requirements file (pins that override transitive versions).
	PipPackages []string `yaml:"pip_packages,omitempty"`

	// LibraryPatches are symlink fixups applied after installation.
	LibraryPatches []LibraryPatch `yaml:"library_patches,omitempty" validate:"dive"`

	// Env holds the ENV defaults baked into the image. The canonical
	// service variables are always present in the built-in catalog.
	Env map[string]string `yaml:"env,omitempty"`

	// ShmSize is the shared memory size for instances (e.g., "8g").
	// Parsed with Docker size syntax; empty uses the Docker default.
	ShmSize string `yaml:"shm_size,omitempty"`

	// Healthcheck configures the image HEALTHCHECK instruction.
	Healthcheck HealthcheckSpec `yaml:"healthcheck,omitempty"`

	// UvicornWorkers sets the worker count of the startup command.
	// Zero means a single worker (uvicorn default).
	UvicornWorkers int `yaml:"uvicorn_workers,omitempty" validate:"gte=0,lte=16"`

	// FourBit is the variant default for quantized model loading.
	FourBit bool `yaml:"four_bit"`

	// SequentialOffload is the variant default for sequential CPU offload.
	SequentialOffload bool `yaml:"sequential_offload"`
}

// VariantCatalog is the set of known variants indexed by name.
type VariantCatalog struct {
	Variants []VariantSpec `yaml:"variants" validate:"required,dive"`
}

// Get returns the named variant spec.
//
// Returns:
//   - The variant spec if found
//   - Error "variant not found: NAME" otherwise
func (vc *VariantCatalog) Get(name string) (*VariantSpec, error) {
	for i := range vc.Variants {
		if vc.Variants[i].Name == name {
			return &vc.Variants[i], nil
		}
	}
	return nil, fmt.Errorf("variant not found: %s", name)
}

// Names returns the variant names in sorted order.
func (vc *VariantCatalog) Names() []string {
	names := make([]string, 0, len(vc.Variants))
	for i := range vc.Variants {
		names = append(names, vc.Variants[i].Name)
	}
	sort.Strings(names)
	return names
}

// defaultServiceEnv returns the canonical environment block shared by all
// variants. Per-variant entries override these values.
func defaultServiceEnv() map[string]string {
	return map[string]string{
		EnvAllocConf:         "expandable_segments:True",
		EnvFourBit:           "0",
		EnvSequentialOffload: "0",
		EnvHFHome:            ModelsMount + "/hf",
		EnvInductorCache:     ModelsMount + "/inductor-cache",
	}
}

// mergeEnv overlays variant-specific entries on the canonical defaults.
func mergeEnv(overrides map[string]string) map[string]string {
	env := defaultServiceEnv()
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// GetDefaultVariantCatalog returns the compiled-in variant catalog.
//
// Built-in variants:
//   - cuda: full-precision GPU serving on the CUDA runtime base
//   - cuda-lite: GPU serving with 4-bit weights and sequential offload
//     enabled by default, for hosts with limited VRAM
//   - cpu: CPU-only serving for development and smoke tests
//
// The catalog can be adjusted by editing variants.yaml in the config
// directory; the file is written with these defaults on first start.
func GetDefaultVariantCatalog() *VariantCatalog {
	cudaPatches := []LibraryPatch{
		// torch ships libcudnn 9 while onnxruntime-gpu still links
		// version 8; point the old soname at the bundled library.
		{
			Link:     "/usr/local/lib/python3.11/dist-packages/nvidia/cudnn/lib/libcudnn.so.8",
			Target:   "libcudnn.so.9",
			Optional: true,
		},
		// heartlib's vendored decoder dlopens the unversioned cublas name.
		{
			Link:     "/usr/local/lib/python3.11/dist-packages/nvidia/cublas/lib/libcublas.so",
			Target:   "libcublas.so.12",
			Optional: true,
		},
		// ctranslate2 wheels expect libcudart without the minor suffix.
		{
			Link:     "/usr/local/cuda/lib64/libcudart.so.12.0",
			Target:   "libcudart.so.12",
			Optional: true,
		},
	}

	cudaEnv := mergeEnv(map[string]string{
		EnvLDLibraryPath: "/usr/local/lib/python3.11/dist-packages/nvidia/cudnn/lib:" +
			"/usr/local/lib/python3.11/dist-packages/nvidia/cublas/lib:" +
			"/usr/local/cuda/lib64",
	})

	cudaLiteEnv := mergeEnv(map[string]string{
		EnvFourBit:           "1",
		EnvSequentialOffload: "1",
		EnvLDLibraryPath: "/usr/local/lib/python3.11/dist-packages/nvidia/cudnn/lib:" +
			"/usr/local/lib/python3.11/dist-packages/nvidia/cublas/lib:" +
			"/usr/local/cuda/lib64",
	})

	healthDefaults := HealthcheckSpec{
		Interval:    "30s",
		Timeout:     "5s",
		StartPeriod: "120s",
		Retries:     3,
	}

	return &VariantCatalog{
		Variants: []VariantSpec{
			{
				Name:          "cuda",
				Description:   "Full-precision GPU serving (CUDA 12 runtime)",
				FrontendImage: "node:20-bookworm-slim",
				BaseImage:     "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
				RequiresGPU:   true,
				AptPackages: []string{
					"python3.11", "python3.11-venv", "python3-pip",
					"ffmpeg", "libsndfile1", "curl", "git",
				},
				PipRequirements: "backend/requirements.txt",
				PipPackages:     []string{"heartlib==0.4.2"},
				LibraryPatches:  cudaPatches,
				Env:             cudaEnv,
				ShmSize:         "8g",
				Healthcheck:     healthDefaults,
			},
			{
				Name:          "cuda-lite",
				Description:   "Low-VRAM GPU serving (4-bit weights, sequential offload)",
				FrontendImage: "node:20-bookworm-slim",
				BaseImage:     "nvidia/cuda:12.4.1-cudnn-runtime-ubuntu22.04",
				RequiresGPU:   true,
				AptPackages: []string{
					"python3.11", "python3.11-venv", "python3-pip",
					"ffmpeg", "libsndfile1", "curl", "git",
				},
				PipRequirements: "backend/requirements.txt",
				PipPackages: []string{
					"heartlib==0.4.2",
					"bitsandbytes==0.45.0",
				},
				LibraryPatches:    cudaPatches,
				Env:               cudaLiteEnv,
				ShmSize:           "4g",
				Healthcheck:       healthDefaults,
				FourBit:           true,
				SequentialOffload: true,
			},
			{
				Name:          "cpu",
				Description:   "CPU-only serving for development and smoke tests",
				FrontendImage: "node:20-bookworm-slim",
				BaseImage:     "python:3.11-slim-bookworm",
				AptPackages: []string{
					"ffmpeg", "libsndfile1", "curl",
				},
				PipRequirements: "backend/requirements-cpu.txt",
				PipPackages:     []string{"heartlib==0.4.2"},
				Env: mergeEnv(map[string]string{
					// No CUDA allocator on CPU-only hosts.
					EnvAllocConf: "",
				}),
				Healthcheck: HealthcheckSpec{
					Interval:    "30s",
					Timeout:     "5s",
					StartPeriod: "300s",
					Retries:     3,
				},
			},
		},
	}
}

// GetOrCreateVariantCatalog gets the variant catalog from variants.yaml or
// creates the file with the compiled-in defaults if it doesn't exist.
//
// This function is called during daemon bootstrap. The catalog file lives
// in the config directory next to models.yaml.
//
// Returns:
//   - VariantCatalog instance (either loaded from file or default)
//   - Error if file operations or validation fail
func (c *Config) GetOrCreateVariantCatalog() (*VariantCatalog, error) {
	confPath := filepath.Join(c.Storage.ConfigDir, VariantsFileName)

	if _, err := os.Stat(confPath); err == nil {
		return loadVariantCatalog(confPath)
	}

	catalog := GetDefaultVariantCatalog()

	if err := writeVariantCatalog(confPath, catalog); err != nil {
		return nil, fmt.Errorf("failed to write variant catalog: %w", err)
	}

	logger.Info("Created default variant catalog: %s", confPath)

	return catalog, nil
}

// loadVariantCatalog loads and validates the catalog from a YAML file.
func loadVariantCatalog(path string) (*VariantCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variant catalog: %w", err)
	}

	var catalog VariantCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse variant catalog: %w", err)
	}

	if err := ValidateVariantCatalog(&catalog); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// ValidateVariantCatalog checks structural validity of a catalog.
//
// Validation covers required fields (names, patch links/targets) and value
// ranges. Duplicate variant names are rejected since the catalog is keyed
// by name everywhere else.
func ValidateVariantCatalog(catalog *VariantCatalog) error {
	validate := validator.New()
	if err := validate.Struct(catalog); err != nil {
		return fmt.Errorf("invalid variant catalog: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Variants))
	for i := range catalog.Variants {
		name := catalog.Variants[i].Name
		if seen[name] {
			return fmt.Errorf("invalid variant catalog: duplicate variant name: %s", name)
		}
		seen[name] = true
	}

	return nil
}

// writeVariantCatalog writes the catalog to a YAML file with a header
// explaining the structure.
func writeVariantCatalog(path string, catalog *VariantCatalog) error {
	data, err := yaml.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("failed to marshal variant catalog: %w", err)
	}

	header := `# Mula Image Variant Catalog
# This file defines the runtime image variants for the HeartMuLa service.
#
# Every variant renders to the same two-stage Dockerfile:
#   1. Frontend stage: installs Node dependencies and builds static assets
#   2. Runtime stage: installs the Python runtime, applies library patches,
#      copies application code and defines startup (uvicorn on port 8000)
#
# Fields of note:
#   library_patches: symlink fixups reconciling conflicting library
#     versions; entries with "optional: true" tolerate missing targets
#   env: ENV defaults baked into the image; HEARTMULA_4BIT and
#     HEARTMULA_SEQUENTIAL_OFFLOAD can be overridden per instance
#   shm_size: shared memory size for containers of this variant
#
# Edits take effect on daemon restart or config reload.
#

`
	content := header + string(data)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write variant catalog file: %w", err)
	}

	return nil
}

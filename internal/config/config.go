// Package config provides configuration management for the mula application.
//
// This package handles all configuration-related functionality including:
//   - Daemon configuration (host, port, address)
//   - Storage paths (config directory, data directory and its subtrees)
//   - Image variant and base image catalogs
//   - Default values and environment-specific settings
//
// The configuration is designed to be flexible and can be customized
// for different deployment scenarios (development, production, systemd service).
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultServerHost is the default daemon host address.
	// The daemon listens on localhost by default for security.
	DefaultServerHost = "localhost"

	// DefaultServerPort is the default daemon port.
	// Port 11780 is used as it doesn't require root privileges.
	DefaultServerPort = 11780

	// DefaultConfigDirName is the default configuration directory name.
	// This directory is created in the user's home directory.
	DefaultConfigDirName = ".mula"

	// DefaultDataDirName is the default data directory name.
	// This subdirectory under config dir contains all runtime data.
	DefaultDataDirName = "data"

	// DefaultModelsDir is the models subdirectory within the data directory.
	// Downloaded checkpoint weights live here; the runtime bind-mounts it
	// onto /app/backend/models inside service containers.
	DefaultModelsDir = "models"

	// DefaultDBDir is the database subdirectory within the data directory.
	// Holds the history store and is bind-mounted onto /app/backend/db
	// inside service containers.
	DefaultDBDir = "db"

	// DefaultLogsDir is the daemon log subdirectory within the data directory.
	DefaultLogsDir = "logs"

	// DefaultBuildDir is the build context subdirectory within the data
	// directory. Rendered Dockerfiles and build contexts are staged here.
	DefaultBuildDir = "build"

	// DefaultImageRepository is the repository part of locally built
	// variant images (e.g., "heartmula/runtime:cuda").
	DefaultImageRepository = "heartmula/runtime"
)

// Config represents the complete application configuration.
//
// This is the root configuration struct that contains all settings required
// for running the mula application, including daemon, storage and build
// configurations.
type Config struct {
	// Server holds the HTTP daemon configuration including host and port.
	Server ServerConfig `json:"server"`

	// Storage holds the storage configuration including directories for
	// data and configuration files.
	Storage StorageConfig `json:"storage"`

	// Build holds image build defaults.
	Build BuildConfig `json:"build"`

	// BinaryVersion is the version of the mula binary (e.g., "v0.1.0").
	// Set from main.Version during initialization.
	BinaryVersion string `json:"-"`
}

// ServerConfig represents the HTTP daemon configuration.
//
// This configuration controls how the mula daemon listens for incoming
// HTTP connections from CLI clients or other API consumers.
type ServerConfig struct {
	// Name is the unique identifier for this daemon instance.
	// Used in container labels so multiple daemons can share a Docker host.
	Name string `json:"name"`

	// Host is the daemon host address (e.g., "localhost", "0.0.0.0").
	// Using "localhost" restricts access to local clients only.
	Host string `json:"host"`

	// Port is the TCP port number the daemon listens on.
	Port int `json:"port"`
}

// StorageConfig represents the storage and persistence configuration.
type StorageConfig struct {
	// ConfigDir is the absolute path to the configuration files directory.
	// Contains YAML catalogs like variants.yaml and models.yaml.
	// Example: "/home/user/.mula"
	ConfigDir string `json:"config_dir"`

	// DataDir is the absolute path to the main data directory.
	// Contains model weights, the history database, logs and build contexts.
	// Example: "/home/user/.mula/data"
	DataDir string `json:"data_dir"`
}

// BuildConfig holds image build defaults.
type BuildConfig struct {
	// DefaultVariant is the variant used when a command does not name one.
	DefaultVariant string `json:"default_variant"`

	// ImageRepository is the repository built images are tagged under.
	ImageRepository string `json:"image_repository"`

	// PinBaseImages resolves FROM tags to digests before every build.
	PinBaseImages bool `json:"pin_base_images"`

	// SourceDir is the service source checkout used as the docker build
	// context. Empty means the working directory of the build command.
	SourceDir string `json:"source_dir,omitempty"`
}

// GetModelsDir returns the model weights directory path.
// Example: ~/.mula/data/models
func (s *StorageConfig) GetModelsDir() string {
	return filepath.Join(s.DataDir, DefaultModelsDir)
}

// GetDBDir returns the database directory path.
// Example: ~/.mula/data/db
func (s *StorageConfig) GetDBDir() string {
	return filepath.Join(s.DataDir, DefaultDBDir)
}

// GetLogsDir returns the daemon log directory path.
// Example: ~/.mula/data/logs
func (s *StorageConfig) GetLogsDir() string {
	return filepath.Join(s.DataDir, DefaultLogsDir)
}

// GetBuildDir returns the build context staging directory path.
// Example: ~/.mula/data/build
func (s *StorageConfig) GetBuildDir() string {
	return filepath.Join(s.DataDir, DefaultBuildDir)
}

// NewDefaultConfig creates a new configuration instance with default values.
//
// This function initializes a Config struct with sensible defaults suitable
// for user-level deployment:
//   - Daemon: localhost:11780 for local-only access
//   - ConfigDir: ~/.mula for catalog files (variants.yaml, models.yaml)
//   - DataDir: ~/.mula/data for weights, history database, logs, contexts
//
// Returns:
//   - A pointer to a newly created Config with default values.
//
// Example:
//
//	cfg := config.NewDefaultConfig()
//	fmt.Printf("Daemon: %s\n", cfg.GetServerAddress())
func NewDefaultConfig() *Config {
	return NewConfigWithCustomDirs("", "")
}

// NewConfigWithCustomDirs creates a new configuration with custom directories.
//
// This function allows specifying custom configuration and data directories
// instead of using the defaults. Useful for:
//   - Testing with isolated environments
//   - Running multiple daemons
//   - Custom deployment scenarios
//
// Parameters:
//   - configDir: Custom configuration directory (empty string uses ~/.mula)
//   - dataDir: Custom data directory (empty string uses configDir/data)
//
// Returns:
//   - A pointer to a newly created Config with the specified directories
func NewConfigWithCustomDirs(configDir, dataDir string) *Config {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "/tmp"
		}
		configDir = filepath.Join(homeDir, DefaultConfigDirName)
	}

	if dataDir == "" {
		dataDir = filepath.Join(configDir, DefaultDataDirName)
	}

	return &Config{
		Server: ServerConfig{
			Host: DefaultServerHost,
			Port: DefaultServerPort,
		},
		Storage: StorageConfig{
			ConfigDir: configDir,
			DataDir:   dataDir,
		},
		Build: BuildConfig{
			DefaultVariant:  "cuda",
			ImageRepository: DefaultImageRepository,
		},
	}
}

// GetServerAddress returns the complete HTTP daemon address.
//
// Returns:
//   - A string in the format "http://host:port"
//
// Example:
//
//	addr := cfg.GetServerAddress()
//	// Returns: "http://localhost:11780"
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// EnsureDirectories creates all required directories if they don't exist.
//
// This method ensures that the directory structure needed by the application
// exists on the filesystem:
//   - The configuration directory (ConfigDir)
//   - The data directory and its models, db, logs and build subtrees
//
// Directories are created with 0755 permissions.
//
// Returns:
//   - nil if all directories were created successfully or already exist
//   - error if any directory creation fails
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.ConfigDir,
		c.Storage.DataDir,
		c.Storage.GetModelsDir(),
		c.Storage.GetDBDir(),
		c.Storage.GetLogsDir(),
		c.Storage.GetBuildDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

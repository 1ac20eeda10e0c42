// Package models - config_loader.go provides configuration-based model
// loading.
//
// This module bridges the configuration system with the checkpoint registry,
// converting YAML-based catalog entries into ModelSpec instances.
package models

import (
	"fmt"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
)

// LoadModelsFromConfig loads checkpoint specifications from the model
// catalog file.
//
// This function reads the catalog and converts it into the ModelSpec format
// used by the registry. It provides a bridge between the configuration
// system and the registry logic.
//
// Parameters:
//   - configPath: Optional path to the catalog file (empty for default)
//
// Returns:
//   - Slice of ModelSpec instances
//   - Error if the catalog cannot be loaded or is invalid
func LoadModelsFromConfig(configPath string) ([]ModelSpec, error) {
	catalog, err := config.LoadModelsConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model catalog: %w", err)
	}

	var specs []ModelSpec
	for _, entry := range catalog.Models {
		specs = append(specs, ModelSpec{
			ID:              entry.ModelID,
			SourceID:        entry.Source.SourceID,
			Revision:        entry.Source.Revision,
			DisplayName:     entry.ModelName,
			Family:          entry.Family,
			Description:     entry.Description,
			Parameters:      entry.Parameters,
			RequiredVRAM:    entry.RequiredVRAMGB,
			SupportsFourBit: entry.SupportsFourBit,
			DefaultVariant:  entry.DefaultVariant,
		})
	}

	logger.Debug("Loaded %d model(s) from catalog", len(specs))
	return specs, nil
}

// LoadAndRegisterModelsFromConfig loads the model catalog and registers its
// entries with the default registry.
//
// Catalog entries replace built-in specs with the same ID, so operators can
// repoint a built-in checkpoint at a mirror or a different revision. Should
// be called during daemon initialization.
//
// Parameters:
//   - configPath: Optional path to the catalog file (empty for default)
//
// Returns:
//   - Error if catalog loading fails
func LoadAndRegisterModelsFromConfig(configPath string) error {
	specs, err := LoadModelsFromConfig(configPath)
	if err != nil {
		return err
	}

	for i := range specs {
		RegisterModelSpec(&specs[i])
	}

	if len(specs) > 0 {
		logger.Info("Registered %d model(s) from catalog", len(specs))
	}
	return nil
}

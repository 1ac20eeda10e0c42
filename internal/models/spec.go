// Package models provides HeartMuLa checkpoint specifications and registry
// management.
//
// This package defines the structure for checkpoint metadata, including the
// upstream HuggingFace repository, hardware requirements and serving
// defaults. Built-in checkpoints are defined under model subdirectories
// (e.g., heartmula/) and register themselves at init time; additional
// checkpoints can be loaded from the model catalog file.
package models

import (
	"fmt"

	"github.com/heartmula/mula/internal/api"
)

// DefaultRevision is the upstream revision used when a spec does not pin one.
const DefaultRevision = "main"

// ModelSpec defines the complete specification for a HeartMuLa checkpoint.
//
// Each checkpoint file should create a ModelSpec instance with all necessary
// configuration. The spec includes metadata, hardware requirements and the
// image variant the checkpoint serves best on.
type ModelSpec struct {
	// ID is the unique checkpoint identifier (e.g., "heartmula-3b")
	ID string

	// SourceID is the HuggingFace repository id the weights are fetched
	// from (e.g., "heartmula/heartmula-3b")
	SourceID string

	// Revision pins the upstream revision (branch, tag or commit).
	// Empty means DefaultRevision.
	Revision string

	// DisplayName is the human-readable checkpoint name
	DisplayName string

	// Family groups related checkpoints (e.g., "heartmula", "heartcodec")
	Family string

	// Description provides detailed information about the checkpoint
	Description string

	// Parameters is the model size in billions of parameters
	Parameters float64

	// RequiredVRAM is the minimum GPU memory in GB for full-precision
	// serving. Hosts below this should run the cuda-lite variant.
	RequiredVRAM int

	// SupportsFourBit indicates the checkpoint can be loaded quantized
	SupportsFourBit bool

	// DefaultVariant is the image variant used when a start request does
	// not name one. Empty falls back to the configured build default.
	DefaultVariant string

	// Capabilities lists the checkpoint's supported features
	// Common values: "music-generation", "audio-codec"
	Capabilities []string

	// License specifies the checkpoint's license (e.g., "Apache-2.0")
	License string

	// Homepage is the URL to the checkpoint's official page or repository
	Homepage string
}

// EffectiveRevision returns the pinned revision, or DefaultRevision when the
// spec does not pin one.
func (m *ModelSpec) EffectiveRevision() string {
	if m.Revision == "" {
		return DefaultRevision
	}
	return m.Revision
}

// APIModel converts the spec to its wire representation.
//
// Status, Size and ModifiedAt describe local download state. They are filled
// with registry-side defaults here; callers that know the models directory
// overlay the actual values (see ApplyLocalState).
//
// Returns:
//   - An api.Model carrying the spec metadata
func (m *ModelSpec) APIModel() api.Model {
	return api.Model{
		Name:            m.ID,
		Description:     m.Description,
		Family:          m.Family,
		Size:            int64(m.Parameters * 2 * 1000000000), // Rough estimate: params * 2 bytes
		Source:          m.SourceID,
		Revision:        m.EffectiveRevision(),
		SupportsFourBit: m.SupportsFourBit,
		MinVRAMGB:       m.RequiredVRAM,
		DefaultVariant:  m.DefaultVariant,
		Status:          api.ModelStatusNotDownloaded,
	}
}

// Validate checks if the checkpoint specification is valid.
//
// Only validates essential fields that cannot be derived elsewhere. Metadata
// like DisplayName and Parameters is optional and may be absent for catalog
// entries.
//
// Returns:
//   - Error if validation fails, nil otherwise
func (m *ModelSpec) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("model ID cannot be empty")
	}
	if m.SourceID == "" {
		return fmt.Errorf("model %s must specify a source repository", m.ID)
	}
	return nil
}

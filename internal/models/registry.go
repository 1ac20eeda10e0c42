// Package models - registry.go implements the checkpoint registry.
//
// The registry is the catalog of checkpoints the daemon knows how to
// download and serve. It is pre-populated with the built-in HeartMuLa
// checkpoints (registered from init() functions in model subdirectories)
// and extended at startup with entries from the model catalog file.
package models

import (
	"fmt"
	"sort"
	"sync"

	"github.com/heartmula/mula/internal/logger"
)

// Registry manages the catalog of available checkpoints and their metadata.
//
// The Registry provides thread-safe access to checkpoint specifications,
// supporting concurrent queries from multiple clients. Registration replaces
// existing entries with the same ID, which is how the catalog file overrides
// built-in specs.
type Registry struct {
	// mu provides thread-safe access to the specs map.
	// Uses RWMutex to allow multiple concurrent readers.
	mu sync.RWMutex

	// specs maps checkpoint IDs to their specifications.
	// Key: checkpoint ID (e.g., "heartmula-3b")
	specs map[string]*ModelSpec
}

// NewRegistry creates an empty checkpoint registry.
//
// Built-in checkpoints register themselves with the package-level default
// registry; explicit instances start empty and are populated by the caller.
// Fresh instances are mostly useful in tests.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*ModelSpec),
	}
}

// Register adds a checkpoint specification to the registry.
//
// If a spec with the same ID already exists, it is replaced. This is used
// both for the built-in specs and for catalog file entries, which take
// precedence because they register later.
//
// Parameters:
//   - spec: The specification to register. Must pass Validate().
//
// Returns:
//   - nil if registration succeeds
//   - error if the spec is nil or invalid
func (r *Registry) Register(spec *ModelSpec) error {
	if spec == nil {
		return fmt.Errorf("model spec cannot be nil")
	}
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.specs[spec.ID] = spec
	return nil
}

// Get retrieves a checkpoint specification by its ID.
//
// This method performs a case-sensitive lookup. It's commonly used to verify
// checkpoint existence before operations like pulling or starting an
// instance.
//
// Parameters:
//   - id: The exact checkpoint ID to look up (e.g., "heartmula-3b")
//
// Returns:
//   - A pointer to the ModelSpec if found
//   - An error if the checkpoint doesn't exist in the registry
func (r *Registry) Get(id string) (*ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, exists := r.specs[id]
	if !exists {
		return nil, fmt.Errorf("model %s not found", id)
	}

	return spec, nil
}

// Lookup retrieves a checkpoint by its ID or its HuggingFace source ID.
//
// The lookup is performed in two steps:
//  1. First, try to find by internal ID (fast path)
//  2. If not found, search all specs for a matching SourceID
//
// This dual-lookup approach lets users reference checkpoints using either
// format ("heartmula-3b" or "heartmula/heartmula-3b").
//
// Parameters:
//   - idOrSource: The checkpoint identifier (internal ID or SourceID)
//
// Returns:
//   - Pointer to ModelSpec if found by either ID or SourceID, nil otherwise
func (r *Registry) Lookup(idOrSource string) *ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if spec, ok := r.specs[idOrSource]; ok {
		return spec
	}

	for _, spec := range r.specs {
		if spec.SourceID == idOrSource {
			return spec
		}
	}

	return nil
}

// List returns checkpoint specifications, optionally filtered by family.
//
// The result is sorted by ID for stable output. The method is thread-safe
// and can be called concurrently from multiple goroutines.
//
// Parameters:
//   - family: Family name to filter by, or empty for all families
//
// Returns:
//   - A sorted slice of matching specs. Empty slice if none match.
func (r *Registry) List(family string) []*ModelSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]*ModelSpec, 0, len(r.specs))
	for _, spec := range r.specs {
		if family != "" && spec.Family != family {
			continue
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}

// Count returns the number of registered checkpoints.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.specs)
}

// defaultRegistry is the package-level singleton registry instance
var defaultRegistry = NewRegistry()

// GetDefaultRegistry returns the singleton registry instance
func GetDefaultRegistry() *Registry {
	return defaultRegistry
}

// GetModelSpec retrieves a checkpoint from the default registry by its ID
// or SourceID. Returns nil when no checkpoint matches.
//
// Example:
//
//	// Both of these find the same checkpoint:
//	spec1 := GetModelSpec("heartmula-3b")
//	spec2 := GetModelSpec("heartmula/heartmula-3b")
func GetModelSpec(idOrSource string) *ModelSpec {
	return defaultRegistry.Lookup(idOrSource)
}

// ListModelSpecs returns all checkpoints in the default registry, sorted
// by ID.
func ListModelSpecs() []*ModelSpec {
	return defaultRegistry.List("")
}

// RegisterModelSpec registers a checkpoint with the default registry.
//
// This function should be called from init() functions in model packages.
// Invalid specs are logged and skipped rather than aborting startup.
// It's safe to call concurrently.
//
// Parameters:
//   - spec: The checkpoint specification to register
func RegisterModelSpec(spec *ModelSpec) {
	if spec == nil {
		return
	}
	if err := defaultRegistry.Register(spec); err != nil {
		logger.Warn("Invalid model spec for %s: %v", spec.ID, err)
		return
	}

	logger.Debug("Registered model: %s", spec.ID)
}

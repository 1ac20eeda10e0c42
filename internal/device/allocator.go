package device

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/logger"
)

// Allocator manages the allocation and release of GPUs.
//
// Allocation state is not persisted anywhere: the allocator derives the set
// of busy GPUs by querying running managed containers and reading their GPU
// index labels. A container stopping releases its GPUs automatically, and a
// daemon restart cannot disagree with reality.
type Allocator struct {
	mu           sync.RWMutex
	gpus         []DetectedGPU  // All detected GPUs, indexed by PCI bus order
	dockerClient *client.Client // Docker client for querying container GPU usage
}

// NewAllocator creates and initializes a new GPU allocator.
//
// The allocator scans the system for NVIDIA GPUs and tracks allocation
// dynamically by querying running Docker containers.
//
// Returns:
//   - Configured allocator
//   - Error if GPU scanning or Docker client creation fails
func NewAllocator() (*Allocator, error) {
	gpus, err := FindGPUs()
	if err != nil {
		return nil, fmt.Errorf("failed to scan GPUs: %w", err)
	}

	dockerClient, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	a := &Allocator{
		gpus:         gpus,
		dockerClient: dockerClient,
	}

	logger.Info("GPU allocator initialized with %d GPU(s) (dynamic allocation from Docker)", len(gpus))
	for _, gpu := range gpus {
		logger.Debug("GPU %d: %s @ %s (%s)", gpu.Index, gpu.ModelName, gpu.BusAddress, gpu.ConfigKey)
	}

	return a, nil
}

// Allocate selects 'count' free GPUs for an instance.
//
// Free means not claimed by any running managed container's GPU index
// label. The lowest free indices are picked. The caller records the
// allocation in the container labels; nothing is written here.
//
// Parameters:
//   - instanceID: Unique identifier for the instance (logging only)
//   - count: Number of GPUs to allocate
//
// Returns:
//   - Slice of allocated DetectedGPU
//   - Error if insufficient GPUs are free
func (a *Allocator) Allocate(instanceID string, count int) ([]DetectedGPU, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocated, err := a.allocatedFromDocker()
	if err != nil {
		logger.Warn("Failed to query Docker for GPU allocations: %v", err)
		// Continue anyway, assuming no allocations
		allocated = make(map[int]bool)
	}

	result, err := selectFree(a.gpus, allocated, count)
	if err != nil {
		return nil, err
	}

	logger.Info("Allocated %d GPU(s) to instance %s: %s",
		count, instanceID, FormatGPUIndices(gpuIndices(result)))

	return result, nil
}

// AllocateExplicit claims the exact GPU indices the user asked for.
//
// Parameters:
//   - instanceID: Unique identifier for the instance (logging only)
//   - indices: Requested GPU indices
//
// Returns:
//   - Slice of the requested DetectedGPU
//   - Error if an index does not exist or is already allocated
func (a *Allocator) AllocateExplicit(instanceID string, indices []int) ([]DetectedGPU, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	allocated, err := a.allocatedFromDocker()
	if err != nil {
		logger.Warn("Failed to query Docker for GPU allocations: %v", err)
		allocated = make(map[int]bool)
	}

	result, err := selectExplicit(a.gpus, allocated, indices)
	if err != nil {
		return nil, err
	}

	logger.Info("Allocated GPU(s) %s to instance %s (explicit request)",
		FormatGPUIndices(indices), instanceID)

	return result, nil
}

// Release frees GPUs previously allocated to an instance.
//
// Since allocation is tracked via container labels, this method only logs.
// The GPUs become free when the container stops.
func (a *Allocator) Release(instanceID string) error {
	logger.Debug("Release called for instance %s (GPUs auto-released via container lifecycle)", instanceID)
	return nil
}

// selectFree picks the lowest 'count' free GPU indices.
func selectFree(gpus []DetectedGPU, allocated map[int]bool, count int) ([]DetectedGPU, error) {
	var free []DetectedGPU
	for _, gpu := range gpus {
		if !allocated[gpu.Index] {
			free = append(free, gpu)
		}
	}

	if len(free) < count {
		return nil, fmt.Errorf("insufficient free GPUs: requested %d, available %d", count, len(free))
	}

	return free[:count], nil
}

// selectExplicit resolves the requested indices against the detected GPUs.
func selectExplicit(gpus []DetectedGPU, allocated map[int]bool, indices []int) ([]DetectedGPU, error) {
	byIndex := make(map[int]DetectedGPU, len(gpus))
	for _, gpu := range gpus {
		byIndex[gpu.Index] = gpu
	}

	result := make([]DetectedGPU, 0, len(indices))
	for _, idx := range indices {
		gpu, ok := byIndex[idx]
		if !ok {
			return nil, fmt.Errorf("GPU index %d does not exist (detected %d GPU(s))", idx, len(gpus))
		}
		if allocated[idx] {
			return nil, fmt.Errorf("GPU %d is already allocated to another instance", idx)
		}
		result = append(result, gpu)
	}

	return result, nil
}

// allocatedFromDocker queries Docker for managed containers and extracts
// their GPU allocations.
//
// Returns:
//   - Map of GPU indices that are currently allocated
//   - Error if Docker query fails
func (a *Allocator) allocatedFromDocker() (map[int]bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	containers, err := a.dockerClient.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", config.LabelRuntime),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	allocated := make(map[int]bool)
	for _, c := range containers {
		// Only running containers hold GPUs
		if c.State != "running" {
			continue
		}

		for _, idx := range ParseGPUIndices(c.Labels[config.LabelGPUIndices]) {
			allocated[idx] = true
		}
	}

	return allocated, nil
}

// FreeGPUs returns the GPUs not claimed by any running managed container.
func (a *Allocator) FreeGPUs() []DetectedGPU {
	a.mu.RLock()
	defer a.mu.RUnlock()

	allocated, err := a.allocatedFromDocker()
	if err != nil {
		logger.Warn("Failed to query Docker for GPU allocations: %v", err)
		// Report all GPUs free if Docker cannot be queried
		return append([]DetectedGPU(nil), a.gpus...)
	}

	var free []DetectedGPU
	for _, gpu := range a.gpus {
		if !allocated[gpu.Index] {
			free = append(free, gpu)
		}
	}
	return free
}

// AllGPUs returns all detected GPUs, allocated or not.
func (a *Allocator) AllGPUs() []DetectedGPU {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]DetectedGPU(nil), a.gpus...)
}

// Allocations returns the current GPU allocations per instance, derived
// from running container labels.
func (a *Allocator) Allocations() map[string][]DetectedGPU {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	containers, err := a.dockerClient.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", config.LabelRuntime),
		),
	})
	if err != nil {
		logger.Warn("Failed to list containers: %v", err)
		return make(map[string][]DetectedGPU)
	}

	byIndex := make(map[int]DetectedGPU, len(a.gpus))
	for _, gpu := range a.gpus {
		byIndex[gpu.Index] = gpu
	}

	result := make(map[string][]DetectedGPU)
	for _, c := range containers {
		if c.State != "running" {
			continue
		}

		instanceID := c.Labels[config.LabelInstanceID]
		if instanceID == "" {
			continue
		}

		var gpus []DetectedGPU
		for _, idx := range ParseGPUIndices(c.Labels[config.LabelGPUIndices]) {
			if gpu, ok := byIndex[idx]; ok {
				gpus = append(gpus, gpu)
			}
		}
		if len(gpus) > 0 {
			result[instanceID] = gpus
		}
	}

	return result
}

// ParseGPUIndices parses a comma-separated string of GPU indices.
// Example: "0,1,2" -> []int{0, 1, 2}. Malformed entries are dropped.
func ParseGPUIndices(s string) []int {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	indices := make([]int, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx, err := strconv.Atoi(part); err == nil {
			indices = append(indices, idx)
		}
	}

	return indices
}

// FormatGPUIndices renders GPU indices as the comma-separated label value.
// Example: []int{0, 1} -> "0,1". The indices are sorted first.
func FormatGPUIndices(indices []int) string {
	sorted := append([]int(nil), indices...)
	sort.Ints(sorted)

	parts := make([]string, len(sorted))
	for i, idx := range sorted {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}

// gpuIndices extracts the index list from a GPU slice.
func gpuIndices(gpus []DetectedGPU) []int {
	indices := make([]int, len(gpus))
	for i, gpu := range gpus {
		indices[i] = gpu.Index
	}
	return indices
}

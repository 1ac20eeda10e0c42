package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/history"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
)

// startBudget bounds the create+start phase of a start request. Image
// pulls stream progress and get most of this; model load happens after
// start and has its own readiness timeout.
const startBudget = 5 * time.Minute

// maintenanceInterval is the cadence of the background state sync.
const maintenanceInterval = time.Minute

// Manager coordinates runtimes, devices and ports for the daemon.
//
// It owns runtime selection (GPU variants go to cuda-docker, the cpu
// variant to cpu-docker), alias bookkeeping across runtimes, GPU and port
// allocation, run history and the background maintenance loop that keeps
// instance states in sync with Docker and the services' health endpoints.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	runtimes   map[string]Runtime
	cfg        *config.Config
	allocator  *device.Allocator
	allocInit  sync.Once
	allocErr   error
	history    *history.Store
	serverName string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager creates a runtime manager. Runtimes are registered
// separately so the daemon can warn-and-continue when a runtime's
// prerequisites (Docker, GPU) are missing.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		runtimes: make(map[string]Runtime),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// SetHistoryStore attaches the run history store. Without it starts and
// stops simply go unrecorded.
func (m *Manager) SetHistoryStore(store *history.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = store
}

// RegisterRuntime adds a runtime to the manager.
func (m *Manager) RegisterRuntime(rt Runtime) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := rt.Name()
	if _, exists := m.runtimes[name]; exists {
		return fmt.Errorf("runtime already registered: %s", name)
	}
	m.runtimes[name] = rt
	logger.Info("Registered runtime: %s", name)
	return nil
}

// SetServerName propagates the daemon identity to all registered
// runtimes. Call before LoadExistingContainers.
func (m *Manager) SetServerName(name string) {
	m.mu.Lock()
	m.serverName = name
	runtimes := make([]Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	m.mu.Unlock()

	for _, rt := range runtimes {
		if s, ok := rt.(interface{ SetServerName(string) }); ok {
			s.SetServerName(name)
		}
	}
}

// LoadExistingContainers restores instances from Docker on all runtimes.
// Individual runtime failures are logged and skipped so one broken
// runtime does not take the daemon down.
func (m *Manager) LoadExistingContainers(ctx context.Context) {
	for _, rt := range m.snapshot() {
		if l, ok := rt.(interface{ LoadExistingContainers(context.Context) error }); ok {
			if err := l.LoadExistingContainers(ctx); err != nil {
				logger.Warn("Failed to load containers for runtime %s: %v", rt.Name(), err)
			}
		}
	}
}

// ReloadContainers rebuilds instance tracking from Docker on all runtimes.
func (m *Manager) ReloadContainers(ctx context.Context) {
	for _, rt := range m.snapshot() {
		if l, ok := rt.(interface{ ReloadContainers(context.Context) error }); ok {
			if err := l.ReloadContainers(ctx); err != nil {
				logger.Warn("Failed to reload containers for runtime %s: %v", rt.Name(), err)
			}
		}
	}
}

// StartBackgroundTasks launches the maintenance loop.
func (m *Manager) StartBackgroundTasks() {
	m.wg.Add(1)
	go m.maintenanceLoop()
}

// Shutdown stops background tasks and waits for them to finish.
func (m *Manager) Shutdown() {
	close(m.stopCh)
	m.wg.Wait()
}

// maintenanceLoop periodically reconciles instance states with Docker and
// probes the health endpoints of instances that should be serving.
func (m *Manager) maintenanceLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.reconcile()
		}
	}
}

// reconcile performs one maintenance pass.
func (m *Manager) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rt := range m.snapshot() {
		instances, err := rt.List(ctx) // List syncs container states
		if err != nil {
			logger.Warn("Maintenance: failed to list %s instances: %v", rt.Name(), err)
			continue
		}

		for _, inst := range instances {
			switch inst.State {
			case StateReady:
				if !ProbeHealth(ctx, inst.Endpoint) {
					logger.Warn("Instance %s (%s) stopped answering health checks", inst.Alias, inst.ID)
					m.setState(rt, inst.ID, StateUnhealthy, "health check failing")
				}
			case StateUnhealthy:
				if ProbeHealth(ctx, inst.Endpoint) {
					logger.Info("Instance %s (%s) recovered", inst.Alias, inst.ID)
					m.setState(rt, inst.ID, StateReady, "")
				}
			case StateError:
				m.finishRun(inst.ID, history.RunStatusError, inst.Error)
			}
		}
	}
}

func (m *Manager) setState(rt Runtime, instanceID string, state InstanceState, errMsg string) {
	if s, ok := rt.(interface {
		SetInstanceState(string, InstanceState, string)
	}); ok {
		s.SetInstanceState(instanceID, state, errMsg)
	}
}

// snapshot returns the registered runtimes without holding the lock
// during iteration.
func (m *Manager) snapshot() []Runtime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runtimes := make([]Runtime, 0, len(m.runtimes))
	for _, rt := range m.runtimes {
		runtimes = append(runtimes, rt)
	}
	return runtimes
}

// getAllocator lazily initializes the GPU allocator. CPU-only hosts never
// touch it.
func (m *Manager) getAllocator() (*device.Allocator, error) {
	m.allocInit.Do(func() {
		m.allocator, m.allocErr = device.NewAllocator()
	})
	return m.allocator, m.allocErr
}

// StartInstance starts a service instance for a start request.
//
// The flow:
//  1. Resolve the model spec and verify the weights are downloaded
//  2. Resolve the alias and handle conflicts (restart stopped instances)
//  3. Resolve the variant and pick the runtime for its device class
//  4. Allocate GPUs (explicit indices or automatic) and a host port
//  5. Create and start the container within the start budget
//  6. Record the run and launch the readiness watcher
//
// On any failure after allocation the partial resources are released, so
// a failed start leaves nothing behind.
//
// Progress messages flow through eventCh (may be nil). The returned
// instance is in the starting or running state; readiness follows
// asynchronously and can be awaited with WaitInstanceReady.
func (m *Manager) StartInstance(ctx context.Context, req api.StartRequest, eventCh chan<- string) (*Instance, error) {
	spec := models.GetModelSpec(req.Model)
	if spec == nil {
		return nil, fmt.Errorf("unknown model: %s (see 'mula ls' for available models)", req.Model)
	}

	modelsDir := m.cfg.Storage.GetModelsDir()
	if !models.IsModelDownloaded(modelsDir, spec.ID, spec.EffectiveRevision()) {
		return nil, fmt.Errorf("model %s is not downloaded; run 'mula pull %s' first", spec.ID, spec.ID)
	}

	alias := req.Alias
	if alias == "" {
		alias = spec.ID
	}

	// An alias that names a different model would make proxy routing
	// ambiguous.
	if alias != spec.ID {
		if other := models.GetModelSpec(alias); other != nil {
			return nil, fmt.Errorf("alias %q conflicts with a model name", alias)
		}
	}

	if existing, rt, _ := m.findByAlias(context.Background(), alias); existing != nil {
		switch existing.State {
		case StateStopped, StateCreated:
			logger.Info("Restarting stopped instance %s (alias: %s)", existing.ID, alias)
			return m.restartInstance(ctx, rt, existing)
		default:
			return nil, fmt.Errorf("alias %q is already in use by instance %s (state: %s)",
				alias, existing.ID, existing.State)
		}
	}

	variantName := req.Variant
	if variantName == "" {
		variantName = spec.DefaultVariant
	}
	if variantName == "" {
		variantName = m.cfg.Build.DefaultVariant
	}

	catalog, err := m.cfg.GetOrCreateVariantCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load variant catalog: %w", err)
	}
	variant, err := catalog.Get(variantName)
	if err != nil {
		return nil, err
	}

	rt, err := m.runtimeForVariant(variant)
	if err != nil {
		return nil, err
	}

	instanceID := uuid.NewString()

	var gpuIndices []int
	if variant.RequiresGPU {
		allocator, err := m.getAllocator()
		if err != nil {
			return nil, fmt.Errorf("GPU allocation unavailable: %w", err)
		}
		var gpus []device.DetectedGPU
		if req.GPUs != "" {
			gpus, err = allocator.AllocateExplicit(instanceID, device.ParseGPUIndices(req.GPUs))
		} else {
			gpus, err = allocator.Allocate(instanceID, 1)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to allocate GPUs: %w", err)
		}
		for _, g := range gpus {
			gpuIndices = append(gpuIndices, g.Index)
		}
	}

	releaseGPUs := func() {
		if variant.RequiresGPU && m.allocator != nil {
			if err := m.allocator.Release(instanceID); err != nil {
				logger.Warn("Failed to release GPUs for %s: %v", instanceID, err)
			}
		}
	}

	port, err := GetGlobalPortAllocator().Allocate()
	if err != nil {
		releaseGPUs()
		return nil, err
	}

	var shmSize int64
	if variant.ShmSize != "" {
		shmSize, err = units.RAMInBytes(variant.ShmSize)
		if err != nil {
			releaseGPUs()
			GetGlobalPortAllocator().Release(port)
			return nil, fmt.Errorf("invalid shm_size %q for variant %s: %w", variant.ShmSize, variantName, err)
		}
	}

	params := CreateParams{
		InstanceID:        instanceID,
		ModelID:           spec.ID,
		Alias:             alias,
		Variant:           variantName,
		Image:             build.ImageName(m.cfg.Build.ImageRepository, variantName, ""),
		ModelsDir:         modelsDir,
		DBDir:             m.cfg.Storage.GetDBDir(),
		GPUIndices:        gpuIndices,
		HostPort:          port,
		FourBit:           req.FourBit,
		SequentialOffload: req.SequentialOffload,
		EnvOverrides:      req.Env,
		MaxConcurrent:     req.MaxConcurrent,
		ShmSize:           shmSize,
		EventCh:           eventCh,
	}

	startCtx, cancel := context.WithTimeout(ctx, startBudget)
	defer cancel()

	inst, err := rt.Create(startCtx, params)
	if err != nil {
		releaseGPUs()
		GetGlobalPortAllocator().Release(port)
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	if err := rt.Start(startCtx, inst.ID); err != nil {
		// Best-effort cleanup of the half-started instance.
		if rmErr := rt.Remove(context.Background(), inst.ID); rmErr != nil {
			logger.Warn("Cleanup failed for instance %s: %v", inst.ID, rmErr)
		}
		releaseGPUs()
		return nil, fmt.Errorf("failed to start instance: %w", err)
	}

	m.recordRunStart(inst)
	m.watchReadiness(rt, inst.ID)

	return inst, nil
}

// restartInstance brings a stopped instance back up under its existing
// container, port and GPU set.
func (m *Manager) restartInstance(ctx context.Context, rt Runtime, inst *Instance) (*Instance, error) {
	startCtx, cancel := context.WithTimeout(ctx, startBudget)
	defer cancel()

	if err := rt.Start(startCtx, inst.ID); err != nil {
		return nil, fmt.Errorf("failed to restart instance %s: %w", inst.ID, err)
	}

	m.recordRunStart(inst)
	m.watchReadiness(rt, inst.ID)

	return inst, nil
}

// runtimeForVariant selects the registered runtime matching the variant's
// device class.
func (m *Manager) runtimeForVariant(variant *config.VariantSpec) (Runtime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name := "cpu-docker"
	if variant.RequiresGPU {
		name = "cuda-docker"
	}

	rt, ok := m.runtimes[name]
	if !ok {
		if variant.RequiresGPU {
			return nil, fmt.Errorf("variant %s requires a GPU but no GPU runtime is available on this host", variant.Name)
		}
		return nil, fmt.Errorf("runtime %s is not available", name)
	}
	return rt, nil
}

// watchReadiness flips a starting instance to running once the container
// is up and to ready once the service answers its health endpoint. A
// readiness timeout leaves the instance unhealthy; a dead container is
// left to the state sync.
func (m *Manager) watchReadiness(rt Runtime, instanceID string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		deadline := time.Now().Add(ReadinessTimeout)
		ticker := time.NewTicker(ReadinessInterval)
		defer ticker.Stop()

		for {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			inst, err := rt.Get(ctx, instanceID)
			cancel()
			if err != nil {
				return // removed while starting
			}

			switch inst.State {
			case StateStopped, StateError:
				m.finishRun(instanceID, history.RunStatusError, inst.Error)
				return
			case StateReady:
				return
			}

			if ProbeHealth(context.Background(), inst.Endpoint) {
				m.setState(rt, instanceID, StateReady, "")
				logger.Info("Instance %s (%s) is ready at %s", inst.Alias, instanceID, inst.Endpoint)
				return
			}

			if inst.State == StateStarting {
				// Container started; mark it running until health passes.
				m.setState(rt, instanceID, StateRunning, "")
			}

			if time.Now().After(deadline) {
				logger.Warn("Instance %s (%s) did not become ready within %s",
					inst.Alias, instanceID, ReadinessTimeout)
				m.setState(rt, instanceID, StateUnhealthy,
					fmt.Sprintf("service did not become ready within %s", ReadinessTimeout))
				return
			}

			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// recordRunStart persists the run record, when a history store is
// attached.
func (m *Manager) recordRunStart(inst *Instance) {
	m.mu.RLock()
	store := m.history
	m.mu.RUnlock()
	if store == nil {
		return
	}

	record := &history.RunRecord{
		InstanceID: inst.ID,
		Alias:      inst.Alias,
		ModelID:    inst.ModelID,
		Variant:    inst.Variant,
		Image:      inst.Image,
		GPUs:       device.FormatGPUIndices(inst.GPUIndices),
		Status:     history.RunStatusRunning,
		StartedAt:  time.Now(),
	}
	if err := store.StartRun(context.Background(), record); err != nil {
		logger.Warn("Failed to record run start for %s: %v", inst.ID, err)
	}
}

// finishRun closes the run record, when a history store is attached.
func (m *Manager) finishRun(instanceID, status, errMsg string) {
	m.mu.RLock()
	store := m.history
	m.mu.RUnlock()
	if store == nil {
		return
	}
	if err := store.FinishRun(context.Background(), instanceID, status, errMsg); err != nil {
		logger.Debug("Failed to record run finish for %s: %v", instanceID, err)
	}
}

// List returns all instances across runtimes.
func (m *Manager) List(ctx context.Context) ([]*Instance, error) {
	var all []*Instance
	for _, rt := range m.snapshot() {
		instances, err := rt.List(ctx)
		if err != nil {
			logger.Warn("Failed to list %s instances: %v", rt.Name(), err)
			continue
		}
		all = append(all, instances...)
	}
	return all, nil
}

// Get returns an instance by exact ID, searching all runtimes.
func (m *Manager) Get(ctx context.Context, instanceID string) (*Instance, error) {
	for _, rt := range m.snapshot() {
		if inst, err := rt.Get(ctx, instanceID); err == nil {
			return inst, nil
		}
	}
	return nil, fmt.Errorf("instance not found: %s", instanceID)
}

// FindByAlias resolves an instance by alias, exact ID or unambiguous ID
// prefix, in that order.
func (m *Manager) FindByAlias(ctx context.Context, alias string) (*Instance, error) {
	inst, _, err := m.findByAlias(ctx, alias)
	return inst, err
}

func (m *Manager) findByAlias(ctx context.Context, alias string) (*Instance, Runtime, error) {
	var prefixMatch *Instance
	var prefixRT Runtime
	prefixCount := 0

	for _, rt := range m.snapshot() {
		instances, err := rt.List(ctx)
		if err != nil {
			continue
		}
		for _, inst := range instances {
			if inst.Alias == alias || inst.ID == alias {
				return inst, rt, nil
			}
			if strings.HasPrefix(inst.ID, alias) {
				prefixMatch = inst
				prefixRT = rt
				prefixCount++
			}
		}
	}

	if prefixCount == 1 {
		return prefixMatch, prefixRT, nil
	}
	if prefixCount > 1 {
		return nil, nil, fmt.Errorf("ambiguous instance reference: %s", alias)
	}
	return nil, nil, fmt.Errorf("instance not found: %s", alias)
}

// StopByAlias stops the instance with the given alias or ID.
func (m *Manager) StopByAlias(ctx context.Context, alias string) error {
	inst, rt, err := m.findByAlias(ctx, alias)
	if err != nil {
		return err
	}

	stopCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := rt.Stop(stopCtx, inst.ID); err != nil {
		return err
	}

	m.finishRun(inst.ID, history.RunStatusStopped, "")
	return nil
}

// RemoveByAlias removes the instance with the given alias or ID.
//
// A running instance is only removed with force, which stops it first.
// GPU and port reservations are released.
func (m *Manager) RemoveByAlias(ctx context.Context, alias string, force bool) error {
	inst, rt, err := m.findByAlias(ctx, alias)
	if err != nil {
		return err
	}

	running := inst.State == StateStarting || inst.State == StateRunning ||
		inst.State == StateReady || inst.State == StateUnhealthy
	if running && !force {
		return fmt.Errorf("instance %s is %s; stop it first or use force", alias, inst.State)
	}

	removeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := rt.Remove(removeCtx, inst.ID); err != nil {
		return err
	}

	if m.allocator != nil {
		if err := m.allocator.Release(inst.ID); err != nil {
			logger.Debug("GPU release for %s: %v", inst.ID, err)
		}
	}

	status := history.RunStatusStopped
	if inst.State == StateError {
		status = history.RunStatusError
	}
	m.finishRun(inst.ID, status, inst.Error)

	return nil
}

// Logs returns the log stream of the instance with the given alias or ID.
func (m *Manager) Logs(ctx context.Context, alias string, opts LogOptions) (*LogStream, error) {
	inst, rt, err := m.findByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}
	return rt.Logs(ctx, inst.ID, opts)
}

// CheckReady reports whether the instance with the given alias answers
// its health endpoint right now.
func (m *Manager) CheckReady(ctx context.Context, alias string) (*api.CheckReadyResponse, error) {
	inst, rt, err := m.findByAlias(ctx, alias)
	if err != nil {
		return nil, err
	}

	resp := &api.CheckReadyResponse{
		State:    string(inst.State),
		Endpoint: inst.Endpoint,
	}

	switch inst.State {
	case StateStopped, StateError, StateCreated:
		resp.Message = fmt.Sprintf("instance is %s", inst.State)
		if inst.Error != "" {
			resp.Message = inst.Error
		}
		return resp, nil
	}

	if ProbeHealth(ctx, inst.Endpoint) {
		if inst.State != StateReady {
			m.setState(rt, inst.ID, StateReady, "")
			resp.State = string(StateReady)
		}
		resp.Ready = true
		return resp, nil
	}

	resp.Message = "service is not answering its health endpoint yet"
	return resp, nil
}

package runtime

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/go-connections/nat"

	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/logger"
)

// CreateContainer assembles and creates the service container for one
// instance.
//
// The assembly is the same for every device class; the sandbox supplies
// the parts that differ (visibility env, device files, extra mounts,
// Docker runtime). Steps:
//  1. Ensure the image exists locally, pulling with streamed progress if not
//  2. Merge sandbox env, service toggles and user overrides
//  3. Bind the service port to the allocated host port
//  4. Bind-mount the models and db directories
//  5. Attach the mula.* labels the daemon rediscovers instances from
//  6. Create the container named after the instance ID
//
// The returned instance is registered in the tracking map in the created
// state. Start is a separate step.
func (b *DockerRuntimeBase) CreateContainer(ctx context.Context, params CreateParams, sandbox DeviceSandbox) (*Instance, error) {
	if params.InstanceID == "" {
		return nil, fmt.Errorf("instance ID is required")
	}
	if params.Image == "" {
		return nil, fmt.Errorf("image is required")
	}
	if params.HostPort == 0 {
		return nil, fmt.Errorf("host port is required")
	}

	if err := build.EnsureImage(ctx, params.Image, params.EventCh); err != nil {
		return nil, fmt.Errorf("failed to ensure image %s: %w", params.Image, err)
	}

	env, err := b.assembleEnv(params, sandbox)
	if err != nil {
		return nil, err
	}

	servicePort := nat.Port(fmt.Sprintf("%d/tcp", config.ServicePort))
	exposedPorts := nat.PortSet{servicePort: struct{}{}}
	portBindings := nat.PortMap{
		servicePort: []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(params.HostPort),
			},
		},
	}

	labels := map[string]string{
		config.LabelRuntime:       b.runtimeName,
		config.LabelInstanceID:    params.InstanceID,
		config.LabelAlias:         params.Alias,
		config.LabelModelID:       params.ModelID,
		config.LabelVariant:       params.Variant,
		config.LabelGPUIndices:    device.FormatGPUIndices(params.GPUIndices),
		config.LabelServicePort:   strconv.Itoa(params.HostPort),
		config.LabelMaxConcurrent: strconv.Itoa(params.MaxConcurrent),
	}
	if b.GetServerName() != "" {
		labels[config.LabelServerName] = b.GetServerName()
	}

	containerConfig := &container.Config{
		Image:        params.Image,
		Env:          env,
		ExposedPorts: exposedPorts,
		Labels:       labels,
	}

	hostConfig, err := b.assembleHostConfig(params, sandbox)
	if err != nil {
		return nil, err
	}
	hostConfig.PortBindings = portBindings

	resp, err := b.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, params.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	instance := &Instance{
		ID:          params.InstanceID,
		ContainerID: resp.ID,
		Alias:       params.Alias,
		ModelID:     params.ModelID,
		Variant:     params.Variant,
		Image:       params.Image,
		RuntimeName: b.runtimeName,
		State:       StateCreated,
		GPUIndices:  params.GPUIndices,
		HostPort:    params.HostPort,
		Endpoint:    fmt.Sprintf("http://localhost:%d", params.HostPort),
		StartedAt:   time.Now(),
		Metadata: map[string]string{
			"max_concurrent": strconv.Itoa(params.MaxConcurrent),
		},
	}

	b.RegisterInstance(instance)

	logger.Info("Created container %s for instance %s (image: %s, port: %d)",
		resp.ID[:12], params.InstanceID, params.Image, params.HostPort)

	return instance, nil
}

// assembleEnv merges the container environment in precedence order:
// sandbox device visibility, service toggles from the start request, then
// user overrides. The image carries the variant ENV defaults, so only
// deviations travel here.
func (b *DockerRuntimeBase) assembleEnv(params CreateParams, sandbox DeviceSandbox) ([]string, error) {
	merged := make(map[string]string)

	sandboxEnv, err := sandbox.PrepareEnvironment(params.GPUIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare device environment: %w", err)
	}
	for k, v := range sandboxEnv {
		merged[k] = v
	}

	if params.FourBit != "" {
		merged[config.EnvFourBit] = params.FourBit
	}
	if params.SequentialOffload != "" {
		merged[config.EnvSequentialOffload] = params.SequentialOffload
	}

	for k, v := range params.EnvOverrides {
		merged[k] = v
	}

	// Deterministic ordering keeps container diffs readable.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env, nil
}

// assembleHostConfig builds the host-side container configuration from
// the sandbox answers: device files, bind mounts, runtime, restart
// policy.
func (b *DockerRuntimeBase) assembleHostConfig(params CreateParams, sandbox DeviceSandbox) (*container.HostConfig, error) {
	deviceFiles, err := sandbox.GetDeviceMounts(params.GPUIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device mounts: %w", err)
	}

	devices := make([]container.DeviceMapping, 0, len(deviceFiles))
	for _, dev := range deviceFiles {
		devices = append(devices, container.DeviceMapping{
			PathOnHost:        dev,
			PathInContainer:   dev,
			CgroupPermissions: "rwm",
		})
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: params.ModelsDir,
			Target: config.ModelsMount,
		},
		{
			Type:   mount.TypeBind,
			Source: params.DBDir,
			Target: config.DBMount,
		},
	}
	for hostPath, containerPath := range sandbox.GetAdditionalMounts() {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   hostPath,
			Target:   containerPath,
			ReadOnly: true,
		})
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Devices: devices,
		},
		Mounts:      mounts,
		NetworkMode: "bridge",
		Privileged:  sandbox.RequiresPrivileged(),
		Runtime:     sandbox.GetDockerRuntime(),
		Init:        BoolPtr(true),
		RestartPolicy: container.RestartPolicy{
			Name: "unless-stopped",
		},
	}
	if params.ShmSize > 0 {
		hostConfig.ShmSize = params.ShmSize
	}

	return hostConfig, nil
}

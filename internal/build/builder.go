// Package build renders variant Dockerfiles into staged build contexts and
// drives docker CLI builds with streamed progress.
package build

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/dockerfile"
	"github.com/heartmula/mula/internal/history"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/registry"
)

// dockerignoreName is the BuildKit ignore file staged next to the rendered
// Dockerfile. BuildKit prefers a "<dockerfile>.dockerignore" sitting beside
// the -f file over one at the context root, which keeps the source checkout
// untouched.
const dockerignoreName = "Dockerfile.dockerignore"

// dockerignoreContent excludes everything the image never copies. Model
// weights and databases are bind-mounted at run time, never baked in.
const dockerignoreContent = `.git
.gitignore
node_modules
**/__pycache__
*.pyc
.venv
venv
**/models
**/db
*.log
`

// Builder stages variant Dockerfiles and runs docker builds.
type Builder struct {
	cfg      *config.Config
	history  *history.Store
	resolver dockerfile.Resolver
}

// NewBuilder creates a builder.
//
// Parameters:
//   - cfg: Daemon configuration (storage paths, image repository)
//   - store: History store for build records, may be nil
func NewBuilder(cfg *config.Config, store *history.Store) *Builder {
	return &Builder{
		cfg:      cfg,
		history:  store,
		resolver: registry.NewClient(),
	}
}

// Options control a single build.
type Options struct {
	// Variant names the variant to build. Empty uses the configured
	// default variant.
	Variant string

	// Tag is an extra tag suffix ("v2" yields "repo:cuda-v2").
	Tag string

	// Pin resolves FROM tags to digests before building.
	Pin bool

	// NoCache passes --no-cache to docker build.
	NoCache bool

	// SourceDir overrides the build context directory. Empty falls back
	// to the configured source dir, then the working directory.
	SourceDir string
}

// Result describes a finished build.
type Result struct {
	// Image is the tag the build produced.
	Image string

	// Variant is the variant that was built.
	Variant string

	// Digests are the base image digests the build was pinned to, empty
	// without pinning.
	Digests []string

	// Duration is the wall-clock build time.
	Duration time.Duration
}

// Build renders the variant Dockerfile, stages it under the build
// directory and runs docker build against the source checkout.
//
// Progress flows through eventCh: status messages plus the marked docker
// output lines from StreamCommand. The outcome is persisted as a build
// record when a history store is attached.
//
// Parameters:
//   - ctx: Context for cancellation control
//   - opts: Build options
//   - eventCh: Optional channel for progress events (can be nil)
//
// Returns:
//   - Build result on success
//   - Error if rendering, staging or the docker build fails
func (b *Builder) Build(ctx context.Context, opts Options, eventCh chan<- string) (*Result, error) {
	variant := opts.Variant
	if variant == "" {
		variant = b.cfg.Build.DefaultVariant
	}

	image := ImageName(b.cfg.Build.ImageRepository, variant, opts.Tag)
	started := time.Now()

	result, err := b.build(ctx, variant, image, opts, eventCh)
	duration := time.Since(started)

	if b.history != nil {
		record := &history.BuildRecord{
			Variant:  variant,
			Image:    image,
			Status:   history.BuildStatusSucceeded,
			Duration: duration,
		}
		if err != nil {
			record.Status = history.BuildStatusFailed
			record.Error = err.Error()
		} else {
			record.Digest = strings.Join(result.Digests, ",")
		}
		if recErr := b.history.AppendBuild(context.Background(), record); recErr != nil {
			logger.Warn("Failed to record build: %v", recErr)
		}
	}

	if err != nil {
		return nil, err
	}
	result.Duration = duration
	return result, nil
}

// build performs the render, stage and docker build steps.
func (b *Builder) build(ctx context.Context, variant, image string, opts Options, eventCh chan<- string) (*Result, error) {
	sendEvent(eventCh, fmt.Sprintf("Rendering Dockerfile for variant %s", variant))

	content, err := b.RenderVariant(variant, opts.Pin)
	if err != nil {
		return nil, err
	}

	result := &Result{Image: image, Variant: variant}
	if opts.Pin {
		result.Digests = pinnedDigests(content)
		sendEvent(eventCh, fmt.Sprintf("Pinned %d base image(s)", len(result.Digests)))
	}

	dockerfilePath, err := b.stage(variant, content)
	if err != nil {
		return nil, err
	}

	contextDir := b.contextDir(opts)
	sendEvent(eventCh, fmt.Sprintf("Building %s from %s", image, contextDir))
	logger.Info("Building image %s (variant %s, context %s)", image, variant, contextDir)

	args := buildArgs(image, dockerfilePath, contextDir, opts.NoCache)
	cmd := exec.CommandContext(ctx, "docker", args...)
	if err := StreamCommand(ctx, cmd, eventCh); err != nil {
		return nil, fmt.Errorf("docker build failed: %w", err)
	}

	sendEvent(eventCh, fmt.Sprintf("Successfully built %s", image))
	logger.Info("Successfully built image %s", image)
	return result, nil
}

// RenderVariant renders the Dockerfile of a variant, optionally pinning
// its FROM lines to digests.
//
// Used directly by the render endpoint, which shows the Dockerfile without
// building it.
func (b *Builder) RenderVariant(variant string, pin bool) ([]byte, error) {
	catalog, err := b.cfg.GetOrCreateVariantCatalog()
	if err != nil {
		return nil, fmt.Errorf("failed to load variant catalog: %w", err)
	}

	spec, err := catalog.Get(variant)
	if err != nil {
		return nil, err
	}

	content, err := dockerfile.Render(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to render Dockerfile: %w", err)
	}

	if pin {
		content, err = dockerfile.Resolve(content, b.resolver)
		if err != nil {
			return nil, fmt.Errorf("failed to pin base images: %w", err)
		}
	}

	return content, nil
}

// stage writes the rendered Dockerfile and its ignore file into the build
// directory for the variant.
//
// Returns the path of the staged Dockerfile.
func (b *Builder) stage(variant string, content []byte) (string, error) {
	stageDir := filepath.Join(b.cfg.Storage.GetBuildDir(), variant)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create build directory: %w", err)
	}

	dockerfilePath := filepath.Join(stageDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	ignorePath := filepath.Join(stageDir, dockerignoreName)
	if err := os.WriteFile(ignorePath, []byte(dockerignoreContent), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dockerignoreName, err)
	}

	return dockerfilePath, nil
}

// contextDir picks the docker build context directory.
func (b *Builder) contextDir(opts Options) string {
	if opts.SourceDir != "" {
		return opts.SourceDir
	}
	if b.cfg.Build.SourceDir != "" {
		return b.cfg.Build.SourceDir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// buildArgs assembles the docker build argument list.
func buildArgs(image, dockerfilePath, contextDir string, noCache bool) []string {
	args := []string{"build", "-t", image, "-f", dockerfilePath}
	if noCache {
		args = append(args, "--no-cache")
	}
	return append(args, contextDir)
}

// pinnedDigests extracts the digests of pinned FROM lines.
func pinnedDigests(content []byte) []string {
	var digests []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(string(content), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.EqualFold(fields[0], "FROM") {
			continue
		}
		_, digest, found := strings.Cut(fields[1], "@")
		if !found || seen[digest] {
			continue
		}
		seen[digest] = true
		digests = append(digests, digest)
	}

	return digests
}

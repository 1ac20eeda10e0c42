// Package dockerfile renders and pins the HeartMuLa runtime Dockerfiles.
//
// Every image variant renders to the same two-stage build:
//
//  1. Frontend stage: installs Node dependencies with npm ci and produces
//     the static asset bundle.
//  2. Runtime stage: installs the Python runtime and system libraries,
//     installs backend dependencies, applies library version patches
//     (symlink fixups, optional ones tolerating missing paths), copies the
//     backend code and built frontend assets, bakes in the service
//     environment defaults, and defines the uvicorn startup on port 8000
//     with a /health healthcheck.
//
// The package also implements FROM-line pinning (Resolve), which rewrites
// floating tags to immutable digests before a build.
package dockerfile

import (
	"fmt"
	"sort"
	"strings"

	"github.com/distribution/reference"

	"github.com/heartmula/mula/internal/config"
)

// FrontendStageName is the stage alias the runtime stage copies assets from.
const FrontendStageName = "frontend"

// Render produces the Dockerfile for a variant.
//
// The variant's stage images must already be resolved (non-empty); callers
// that support the base image catalog fill them in first. The output is
// deterministic for a given spec: package lists keep their order, the ENV
// block is sorted by key.
//
// Parameters:
//   - spec: Variant to render
//
// Returns:
//   - Rendered Dockerfile content
//   - Error if the spec is incomplete or contains invalid image references
func Render(spec *config.VariantSpec) ([]byte, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("variant name is required")
	}
	if spec.FrontendImage == "" || spec.BaseImage == "" {
		return nil, fmt.Errorf("variant %s: stage images are not resolved", spec.Name)
	}

	for _, img := range []string{spec.FrontendImage, spec.BaseImage} {
		if _, err := reference.ParseNormalizedNamed(strings.SplitN(img, "@", 2)[0]); err != nil {
			return nil, fmt.Errorf("variant %s: invalid image reference %q: %w", spec.Name, img, err)
		}
	}

	var b strings.Builder

	fmt.Fprintf(&b, "# HeartMuLa runtime image, %s variant.\n", spec.Name)
	b.WriteString("# Generated by mula; edit variants.yaml instead of this file.\n\n")

	writeFrontendStage(&b, spec)
	b.WriteString("\n")
	writeRuntimeStage(&b, spec)

	return []byte(b.String()), nil
}

// writeFrontendStage emits the Node asset build stage.
func writeFrontendStage(b *strings.Builder, spec *config.VariantSpec) {
	fmt.Fprintf(b, "FROM %s AS %s\n", spec.FrontendImage, FrontendStageName)
	b.WriteString("WORKDIR /app/frontend\n")
	b.WriteString("COPY frontend/package.json frontend/package-lock.json ./\n")
	b.WriteString("RUN npm ci\n")
	b.WriteString("COPY frontend/ ./\n")
	b.WriteString("RUN npm run build\n")
}

// writeRuntimeStage emits the Python runtime stage.
func writeRuntimeStage(b *strings.Builder, spec *config.VariantSpec) {
	fmt.Fprintf(b, "FROM %s\n", spec.BaseImage)
	fmt.Fprintf(b, "WORKDIR %s\n", config.AppDir)

	if len(spec.AptPackages) > 0 {
		b.WriteString("ENV DEBIAN_FRONTEND=noninteractive\n")
		b.WriteString("RUN apt-get update && apt-get install -y --no-install-recommends \\\n")
		fmt.Fprintf(b, "    %s \\\n", strings.Join(spec.AptPackages, " "))
		b.WriteString("    && rm -rf /var/lib/apt/lists/*\n")
	}

	if spec.PipRequirements != "" {
		dest := config.BackendDir + "/" + lastPathElement(spec.PipRequirements)
		fmt.Fprintf(b, "COPY %s %s\n", spec.PipRequirements, dest)
		fmt.Fprintf(b, "RUN pip3 install --no-cache-dir -r %s\n", dest)
	}

	if len(spec.PipPackages) > 0 {
		fmt.Fprintf(b, "RUN pip3 install --no-cache-dir %s\n", strings.Join(spec.PipPackages, " "))
	}

	// Library version patches. Optional patches tolerate a missing path
	// so slimmer bases (without the conflicting library) still build.
	for _, patch := range spec.LibraryPatches {
		if patch.Optional {
			fmt.Fprintf(b, "RUN ln -sf %s %s || true\n", patch.Target, patch.Link)
		} else {
			fmt.Fprintf(b, "RUN ln -sf %s %s\n", patch.Target, patch.Link)
		}
	}

	fmt.Fprintf(b, "COPY backend/ %s/\n", config.BackendDir)
	fmt.Fprintf(b, "COPY --from=%s /app/frontend/dist %s\n", FrontendStageName, config.FrontendDistDir)

	writeEnvBlock(b, spec.Env)

	fmt.Fprintf(b, "EXPOSE %d\n", config.ServicePort)

	writeHealthcheck(b, &spec.Healthcheck)

	b.WriteString(startupCommand(spec))
}

// writeEnvBlock emits one ENV instruction with sorted keys.
//
// An empty value drops the variable from the block (used by variants that
// suppress a default, like the CUDA allocator tuning on CPU images).
func writeEnvBlock(b *strings.Builder, env map[string]string) {
	keys := make([]string, 0, len(env))
	for k, v := range env {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	b.WriteString("ENV ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" \\\n    ")
		}
		fmt.Fprintf(b, "%s=%s", k, quoteEnvValue(env[k]))
	}
	b.WriteString("\n")
}

// quoteEnvValue quotes values that would otherwise break ENV parsing.
func quoteEnvValue(v string) string {
	if strings.ContainsAny(v, " \t\"'") {
		return fmt.Sprintf("%q", v)
	}
	return v
}

// writeHealthcheck emits the HEALTHCHECK instruction probing the backend
// health endpoint.
func writeHealthcheck(b *strings.Builder, hc *config.HealthcheckSpec) {
	b.WriteString("HEALTHCHECK")

	if hc.Interval != "" {
		fmt.Fprintf(b, " --interval=%s", hc.Interval)
	}
	if hc.Timeout != "" {
		fmt.Fprintf(b, " --timeout=%s", hc.Timeout)
	}
	if hc.StartPeriod != "" {
		fmt.Fprintf(b, " --start-period=%s", hc.StartPeriod)
	}
	if hc.Retries > 0 {
		fmt.Fprintf(b, " --retries=%d", hc.Retries)
	}

	fmt.Fprintf(b, " \\\n    CMD curl -f http://localhost:%d%s || exit 1\n",
		config.ServicePort, config.HealthPath)
}

// startupCommand renders the exec-form CMD invoking uvicorn against the
// backend ASGI application.
func startupCommand(spec *config.VariantSpec) string {
	args := []string{
		"uvicorn", config.ASGIApp,
		"--host", "0.0.0.0",
		"--port", fmt.Sprintf("%d", config.ServicePort),
	}
	if spec.UvicornWorkers > 1 {
		args = append(args, "--workers", fmt.Sprintf("%d", spec.UvicornWorkers))
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("CMD [%s]\n", strings.Join(quoted, ", "))
}

// lastPathElement returns the final element of a slash-separated path.
func lastPathElement(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

package build

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/heartmula/mula/internal/logger"
)

// ImageName composes the tag for a variant build.
//
// Examples:
//   - ImageName("heartmula/runtime", "cuda", "") -> "heartmula/runtime:cuda"
//   - ImageName("heartmula/runtime", "cuda", "v2") -> "heartmula/runtime:cuda-v2"
func ImageName(repository, variant, tag string) string {
	if tag == "" {
		return fmt.Sprintf("%s:%s", repository, variant)
	}
	return fmt.Sprintf("%s:%s-%s", repository, variant, tag)
}

// ImageExists checks if an image is present in the local Docker cache.
//
// Uses the docker CLI so the check honors the same daemon selection
// (DOCKER_HOST, contexts) as the build and pull commands.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - image: Full image name (e.g., "heartmula/runtime:cuda")
//
// Returns:
//   - true if the image exists locally
//   - Error if the Docker query fails
func ImageExists(ctx context.Context, image string) (bool, error) {
	if image == "" {
		return false, fmt.Errorf("image name cannot be empty")
	}

	output, err := exec.CommandContext(ctx, "docker", "images", "-q", image).Output()
	if err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("operation cancelled")
		}
		return false, fmt.Errorf("failed to check Docker image: %w", err)
	}

	exists := strings.TrimSpace(string(output)) != ""
	logger.Debug("Image %s locally present: %v", image, exists)
	return exists, nil
}

// PullImage pulls an image, streaming docker's progress output as events.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - image: Full image name to pull
//   - eventCh: Optional channel for progress events (can be nil)
func PullImage(ctx context.Context, image string, eventCh chan<- string) error {
	if image == "" {
		return fmt.Errorf("image name cannot be empty")
	}

	logger.Info("Pulling image: %s", image)
	sendEvent(eventCh, fmt.Sprintf("Pulling image: %s", image))

	cmd := exec.CommandContext(ctx, "docker", "pull", image)
	if err := StreamCommand(ctx, cmd, eventCh); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}

	sendEvent(eventCh, fmt.Sprintf("Successfully pulled image: %s", image))
	logger.Info("Successfully pulled image: %s", image)
	return nil
}

// EnsureImage pulls an image unless it is already local.
func EnsureImage(ctx context.Context, image string, eventCh chan<- string) error {
	exists, err := ImageExists(ctx, image)
	if err != nil {
		return err
	}
	if exists {
		sendEvent(eventCh, fmt.Sprintf("Image already present: %s", image))
		return nil
	}
	return PullImage(ctx, image, eventCh)
}

// RemoveImage removes an image from the local Docker cache.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - image: Full image name to remove
//   - force: Remove even when containers reference the image
func RemoveImage(ctx context.Context, image string, force bool) error {
	if image == "" {
		return fmt.Errorf("image name cannot be empty")
	}

	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, image)

	if output, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("operation cancelled")
		}
		return fmt.Errorf("failed to remove image %s: %s", image, strings.TrimSpace(string(output)))
	}

	logger.Info("Removed image: %s", image)
	return nil
}

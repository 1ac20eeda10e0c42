package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/client"
)

// BuildOptions holds options for the build command
type BuildOptions struct {
	*GlobalOptions

	// Variant is the variant name to build
	Variant string

	// Tag is an optional extra image tag suffix
	Tag string

	// Pin resolves FROM lines to immutable digests before building
	Pin bool

	// NoCache disables the docker build cache
	NoCache bool
}

// NewBuildCommand creates the build command.
//
// The build command renders a variant's Dockerfile and builds the service
// image on the daemon, streaming docker's own progress output back to the
// terminal.
//
// Usage:
//
//	mula build VARIANT [OPTIONS]
//
// Examples:
//
//	# Build the cuda variant
//	mula build cuda
//
//	# Build with pinned base images and an extra tag
//	mula build cuda --pin --tag v1.2.0
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for building variant images
func NewBuildCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &BuildOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "build VARIANT",
		Short: "Build a service image variant",
		Long: `Build a HeartMuLa service image from a variant recipe.

The daemon renders the variant's Dockerfile and runs docker build,
streaming build output back in real time. Built images are tagged
REPOSITORY:VARIANT (e.g. heartmula/runtime:cuda); --tag adds a second
REPOSITORY:VARIANT-TAG tag.`,
		Example: `  # Build the default cuda variant
  mula build cuda

  # Build the CPU-only variant without cache
  mula build cpu --no-cache

  # Reproducible build: pin FROM lines to digests
  mula build cuda --pin --tag v1.2.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Variant = args[0]
			return runBuild(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "",
		"extra image tag suffix (e.g. v1.2.0)")
	cmd.Flags().BoolVar(&opts.Pin, "pin", false,
		"resolve base images to immutable digests before building")
	cmd.Flags().BoolVar(&opts.NoCache, "no-cache", false,
		"do not use the docker build cache")

	return cmd
}

// runBuild executes the build command logic
func runBuild(opts *BuildOptions) error {
	c := getClient(opts.GlobalOptions)

	fmt.Printf("Building variant %s...\n\n", opts.Variant)

	req := api.BuildRequest{
		Variant: opts.Variant,
		Tag:     opts.Tag,
		Pin:     opts.Pin,
		NoCache: opts.NoCache,
	}

	resp, err := c.Build(cmdContext(), req, func(msg client.SSEMessage) error {
		renderBuildEvent(msg)
		return nil
	})
	fmt.Println()
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if resp.Status != "success" {
		return fmt.Errorf("build failed: %s", resp.Message)
	}

	fmt.Printf("✓ Built %s\n", resp.Image)
	return nil
}

// renderBuildEvent replays one streamed build event on the terminal.
//
// Docker's progress output arrives marked: CR events redraw the current
// line (layer progress bars), LF events complete it. Replaying the
// markers reproduces docker's native rendering.
func renderBuildEvent(msg client.SSEMessage) {
	if msg.Type != "status" {
		return
	}
	switch {
	case strings.HasPrefix(msg.Message, build.EventOverwritePrefix):
		fmt.Printf("\r\033[2K%s", strings.TrimPrefix(msg.Message, build.EventOverwritePrefix))
	case strings.HasPrefix(msg.Message, build.EventLinePrefix):
		fmt.Printf("\r\033[2K%s\n", strings.TrimPrefix(msg.Message, build.EventLinePrefix))
	default:
		fmt.Printf("▸ %s\n", msg.Message)
	}
}

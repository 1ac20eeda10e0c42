package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RenderOptions holds options for the render command
type RenderOptions struct {
	*GlobalOptions

	// Variant is the variant name to render
	Variant string

	// Pin resolves FROM lines to immutable digests
	Pin bool

	// Output writes the Dockerfile to a file instead of stdout
	Output string
}

// NewRenderCommand creates the render command.
//
// The render command prints a variant's generated Dockerfile without
// building it, useful for inspection and for building by hand.
//
// Usage:
//
//	mula render VARIANT [-o FILE] [--pin]
//
// Examples:
//
//	mula render cuda
//	mula render cpu -o Dockerfile.cpu
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for rendering Dockerfiles
func NewRenderCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RenderOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "render VARIANT",
		Short: "Render a variant's Dockerfile",
		Long: `Render the Dockerfile for an image variant without building it.

The output is the exact Dockerfile 'mula build' would use, including the
frontend build stage, the runtime stage and any library patches the
variant applies.`,
		Example: `  # Print the cuda variant Dockerfile
  mula render cuda

  # Write the cpu variant Dockerfile to a file, with pinned bases
  mula render cpu --pin -o Dockerfile.cpu`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Variant = args[0]
			return runRender(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Pin, "pin", false,
		"resolve base images to immutable digests")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "",
		"write the Dockerfile to a file instead of stdout")

	return cmd
}

// runRender executes the render command logic
func runRender(opts *RenderOptions) error {
	c := getClient(opts.GlobalOptions)

	resp, err := c.Render(cmdContext(), opts.Variant, opts.Pin)
	if err != nil {
		return fmt.Errorf("failed to render variant: %w", err)
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(resp.Dockerfile), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.Output, err)
		}
		fmt.Printf("Wrote %s (variant %s)\n", opts.Output, resp.Variant)
		return nil
	}

	fmt.Print(resp.Dockerfile)
	return nil
}

package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RmiOptions holds options for the rmi command
type RmiOptions struct {
	*GlobalOptions

	// Variant is the variant whose image to remove
	Variant string

	// Tag is the extra tag suffix of the image to remove
	Tag string

	// Force removes the image even if containers reference it
	Force bool
}

// NewRmiCommand creates the rmi command.
//
// The rmi command removes a locally built variant image, similar to
// 'docker rmi'.
//
// Usage:
//
//	mula rmi VARIANT [--tag TAG] [--force]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for removing images
func NewRmiCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RmiOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "rmi VARIANT",
		Short: "Remove a built variant image",
		Long: `Remove the locally built image for a variant.

Instances started from the image keep running; the image is only
untagged. Use --force to remove an image still referenced by stopped
containers.`,
		Example: `  # Remove the cuda variant image
  mula rmi cuda

  # Remove a tagged build
  mula rmi cuda --tag v1.2.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Variant = args[0]
			return runRmi(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Tag, "tag", "",
		"extra tag suffix of the image to remove")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false,
		"force removal of the image")

	return cmd
}

// runRmi executes the rmi command logic
func runRmi(opts *RmiOptions) error {
	c := getClient(opts.GlobalOptions)

	if err := c.RemoveImage(cmdContext(), opts.Variant, opts.Tag, opts.Force); err != nil {
		return fmt.Errorf("failed to remove image: %w", err)
	}

	fmt.Printf("✓ Removed image for variant %s\n", opts.Variant)
	return nil
}

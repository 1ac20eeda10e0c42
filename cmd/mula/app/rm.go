package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RmOptions holds options for the rm command
type RmOptions struct {
	*GlobalOptions

	// Alias is the instance alias to remove
	Alias string

	// Force removes a running instance by stopping it first
	Force bool
}

// NewRmCommand creates the rm command.
//
// The rm command removes an instance's container, releasing its GPUs and
// host port.
//
// Usage:
//
//	mula rm ALIAS [--force]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for removing instances
func NewRmCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &RmOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "rm ALIAS",
		Short: "Remove a service instance",
		Long: `Remove a service instance and its container.

Stopped instances are removed directly. A serving instance is only
removed with --force, which stops it first. Removing releases the
instance's GPUs and host port.`,
		Example: `  # Remove a stopped instance
  mula rm heartmula-3b

  # Stop and remove a running instance
  mula rm heartmula-3b --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Alias = args[0]
			return runRm(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false,
		"stop the instance first if it is running")

	return cmd
}

// runRm executes the rm command logic
func runRm(opts *RmOptions) error {
	c := getClient(opts.GlobalOptions)

	if err := c.Remove(cmdContext(), opts.Alias, opts.Force); err != nil {
		return fmt.Errorf("failed to remove instance: %w", err)
	}

	fmt.Printf("✓ Removed %s\n", opts.Alias)
	return nil
}

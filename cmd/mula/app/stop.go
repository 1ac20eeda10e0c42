package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStopCommand creates the stop command.
//
// The stop command stops a running instance without removing its
// container, so it can be restarted later with the same configuration.
//
// Usage:
//
//	mula stop ALIAS
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for stopping instances
func NewStopCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ALIAS",
		Short: "Stop a service instance",
		Long: `Stop a running service instance.

The instance's container is kept, so 'mula start' on the same alias
resumes it with its original GPU and port assignment. Use 'mula rm' to
remove the container entirely.`,
		Example: `  mula stop heartmula-3b`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			alias := args[0]
			fmt.Printf("Stopping %s...\n", alias)

			if err := c.Stop(cmdContext(), alias); err != nil {
				return fmt.Errorf("failed to stop instance: %w", err)
			}

			fmt.Printf("✓ Stopped %s\n", alias)
			return nil
		},
	}
}

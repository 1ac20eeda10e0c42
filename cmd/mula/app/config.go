package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
//
// The config command inspects and reloads the daemon configuration.
//
// Usage:
//
//	mula config get      # Show the daemon's effective configuration
//	mula config reload   # Re-read catalog files
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for config operations
func NewConfigCommand(globalOpts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and reload daemon configuration",
		Long: `Inspect the daemon's effective configuration and reload its
catalog files (models.yaml, variants.yaml) without a restart.

The daemon also reloads catalogs automatically when the files change;
'config reload' forces it immediately.`,
		Example: `  # Show the daemon configuration
  mula config get

  # Re-read catalog files
  mula config reload`,
	}

	cmd.AddCommand(
		newConfigGetCommand(globalOpts),
		newConfigReloadCommand(globalOpts),
	)

	return cmd
}

// newConfigGetCommand creates the 'config get' subcommand
func newConfigGetCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the daemon's effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			cfg, err := c.GetConfig(cmdContext())
			if err != nil {
				return fmt.Errorf("failed to get config: %w", err)
			}

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to format config: %w", err)
			}

			fmt.Print(string(out))
			return nil
		},
	}
}

// newConfigReloadCommand creates the 'config reload' subcommand
func newConfigReloadCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the daemon's catalog files",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			if err := c.ReloadConfig(cmdContext()); err != nil {
				return fmt.Errorf("failed to reload config: %w", err)
			}

			fmt.Println("✓ Configuration reloaded")
			return nil
		},
	}
}

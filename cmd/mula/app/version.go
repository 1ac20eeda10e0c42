package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build information. Populated at build time via -ldflags:
//
//	-X github.com/heartmula/mula/cmd/mula/app.Version=v1.0.0
//	-X github.com/heartmula/mula/cmd/mula/app.BuildTime=2026-08-27T10:00:00Z
//	-X github.com/heartmula/mula/cmd/mula/app.GitCommit=abc1234
var (
	// Version is the semantic version of this build.
	Version = "dev"

	// BuildTime is the timestamp the binary was built at.
	BuildTime = "unknown"

	// GitCommit is the git commit SHA the build was created from.
	GitCommit = "unknown"
)

// GetVersion returns the client binary version.
func GetVersion() string {
	return Version
}

// VersionOptions holds options for the version command
type VersionOptions struct {
	*GlobalOptions

	// Client shows only client version
	Client bool

	// Server shows only server version
	Server bool
}

// NewVersionCommand creates the version command.
//
// The version command displays version information for the CLI client and/or
// the mula daemon. It corresponds to 'kubectl version' in Kubernetes.
//
// Usage:
//
//	mula version [--client] [--server]
//
// Examples:
//
//	# Show both client and daemon versions
//	mula version
//
//	# Show only client version
//	mula version --client
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for displaying version info
func NewVersionCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &VersionOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long: `Display version information for the mula client and daemon.

By default, shows version information for both the client and daemon. Use
--client or --server to show only one.`,
		Example: `  # Show both client and daemon versions
  mula version

  # Show only client version
  mula version --client

  # Show only daemon version
  mula version --server`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Client, "client", false,
		"show client version only")
	cmd.Flags().BoolVar(&opts.Server, "server", false,
		"show daemon version only")

	return cmd
}

// runVersion executes the version command logic.
func runVersion(opts *VersionOptions) error {
	showClient := opts.Client || (!opts.Client && !opts.Server)
	showServer := opts.Server || (!opts.Client && !opts.Server)

	if showClient {
		fmt.Println("Client Version:")
		fmt.Printf("  Version:    %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	}

	if showServer {
		if showClient {
			fmt.Println()
		}

		client := getClient(opts.GlobalOptions)
		resp, err := client.Version(cmdContext())
		if err != nil {
			return fmt.Errorf("failed to get daemon version: %w", err)
		}

		fmt.Println("Server Version:")
		fmt.Printf("  Version:    %s\n", resp.Version)
		fmt.Printf("  Build Time: %s\n", resp.BuildTime)
		fmt.Printf("  Git Commit: %s\n", resp.GitCommit)
	}

	return nil
}

// Package app provides the command-line interface implementation for mula.
//
// This package contains all CLI commands and their implementations, following
// the Kubernetes CLI architecture pattern with cobra. Commands are organized
// hierarchically with a root command and subcommands.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/client"
	"github.com/heartmula/mula/internal/config"
)

const (
	// cliName is the name of the CLI application
	cliName = "mula"

	// cliDescription is the short description shown in help text
	cliDescription = "mula - HeartMuLa music generation service manager"
)

// GlobalOptions holds options that are common to all commands
type GlobalOptions struct {
	// ServerURL is the mula daemon address
	ServerURL string

	// Verbose enables verbose output
	Verbose bool
}

// NewMulaCommand creates the root mula command with all subcommands.
//
// The root command provides the main entry point for the CLI. It sets up
// global flags, initializes configuration, and registers all subcommands.
//
// Returns:
//   - A configured cobra.Command ready for execution
//
// Example:
//
//	cmd := NewMulaCommand()
//	if err := cmd.Execute(); err != nil {
//	    os.Exit(1)
//	}
func NewMulaCommand() *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   cliName,
		Short: cliDescription,
		Long: `mula is a command-line tool for building and running the HeartMuLa
music generation service.

It renders and builds the service's Docker image variants (cuda, cuda-lite,
cpu), downloads model weights from the upstream hub and runs service
instances in containers with GPU allocation, health probing and a request
proxy.

The mula CLI communicates with a local daemon process over HTTP. Make sure
the daemon is running ('mula serve') before executing commands.`,
		SilenceUsage: true,
		// SilenceErrors is false by default - we want to show errors to users
	}

	// Add global flags
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "",
		fmt.Sprintf("mula daemon address (default: http://localhost:%d)", config.DefaultServerPort))
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	cmd.AddCommand(
		NewServeCommand(opts),
		NewBuildCommand(opts),
		NewRenderCommand(opts),
		NewVariantsCommand(opts),
		NewRmiCommand(opts),
		NewLsCommand(opts),
		NewPullCommand(opts),
		NewShowCommand(opts),
		NewStartCommand(opts),
		NewStopCommand(opts),
		NewRmCommand(opts),
		NewPsCommand(opts),
		NewLogsCommand(opts),
		NewConsoleCommand(opts),
		NewHistoryCommand(opts),
		NewDeviceCommand(opts),
		NewConfigCommand(opts),
		NewVersionCommand(opts),
	)

	return cmd
}

// getClient creates and returns a configured API client.
//
// This helper function initializes an HTTP client for communicating with
// the mula daemon. It determines the daemon address using the following priority:
//  1. --server flag (if specified)
//  2. Default: http://localhost:11780
//
// Parameters:
//   - opts: Global options containing server URL
//
// Returns:
//   - A configured client.Client instance
func getClient(opts *GlobalOptions) *client.Client {
	serverURL := opts.ServerURL

	// Default to localhost if not specified
	if serverURL == "" {
		serverURL = fmt.Sprintf("http://localhost:%d", config.DefaultServerPort)
	}

	return client.NewClient(serverURL)
}

// cmdContext returns the request context for one-shot CLI calls.
// Long-running commands (start, logs, console) build their own
// cancellable contexts instead.
func cmdContext() context.Context {
	return context.Background()
}

// checkError prints an error and exits if err is not nil.
//
// This is a convenience function for fatal error handling in CLI commands.
// It prints the error to stderr and exits with code 1.
//
// Parameters:
//   - err: The error to check
func checkError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

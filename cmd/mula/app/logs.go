package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// LogsOptions holds options for the logs command
type LogsOptions struct {
	*GlobalOptions

	// Alias is the instance alias to get logs from
	Alias string

	// Follow continues streaming logs in real-time
	Follow bool

	// Tail limits output to the last N lines
	Tail string
}

// NewLogsCommand creates the logs command.
//
// The logs command displays container logs from a service instance.
//
// Usage:
//
//	mula logs ALIAS [OPTIONS]
//
// Examples:
//
//	# View logs
//	mula logs heartmula-3b
//
//	# Follow logs in real-time (like tail -f)
//	mula logs heartmula-3b -f
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for viewing logs
func NewLogsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LogsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "logs ALIAS",
		Short: "View logs from a service instance",
		Long: `View container logs from a service instance.

By default, shows existing logs and exits. Use -f/--follow to stream
logs in real-time, and --tail to limit output to the last N lines.`,
		Example: `  # Show existing logs
  mula logs heartmula-3b

  # Follow logs in real-time (press Ctrl+C to stop)
  mula logs heartmula-3b -f

  # Show the last 100 lines
  mula logs heartmula-3b --tail 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Alias = args[0]
			return runLogs(opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false,
		"follow log output (stream logs in real-time)")
	cmd.Flags().StringVar(&opts.Tail, "tail", "",
		"number of lines to show from the end of the logs")

	return cmd
}

// runLogs executes the logs command logic
func runLogs(opts *LogsOptions) error {
	c := getClient(opts.GlobalOptions)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.Follow {
		// Ctrl+C cancels the stream instead of killing the process
		// mid-line.
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()
	}

	body, err := c.StreamLogs(ctx, opts.Alias, opts.Follow, opts.Tail)
	if err != nil {
		return fmt.Errorf("failed to get logs: %w", err)
	}
	defer body.Close()

	if _, err := io.Copy(os.Stdout, body); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to stream logs: %w", err)
	}

	return nil
}

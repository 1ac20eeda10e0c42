package app

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/client"
)

// PullOptions holds options for the pull command
type PullOptions struct {
	*GlobalOptions

	// Model is the model name to pull
	Model string

	// Revision overrides the registry revision
	Revision string
}

// NewPullCommand creates the pull command.
//
// The pull command downloads model weights from the upstream hub, making
// the model available for 'mula start'.
//
// Usage:
//
//	mula pull MODEL
//
// Examples:
//
//	mula pull heartmula-3b
//	mula pull heartcodec
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for pulling models
func NewPullCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &PullOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "pull MODEL",
		Short: "Download a model",
		Long: `Download model weights to the daemon's models directory.

Weights are fetched file by file from the model's upstream repository and
must be present before the model can be served with 'mula start'.
Interrupted downloads resume where they left off.`,
		Example: `  mula pull heartmula-3b
  mula pull heartcodec

  # Pull a specific upstream revision
  mula pull heartmula-3b --revision main`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Model = args[0]
			return runPull(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Revision, "revision", "",
		"upstream revision to download (default: registry revision)")

	return cmd
}

// runPull executes the pull command logic.
//
// Progress events overwrite the current terminal line; status events get
// their own lines.
func runPull(opts *PullOptions) error {
	c := getClient(opts.GlobalOptions)

	fmt.Printf("Pulling %s...\n", opts.Model)

	var lastWasProgress bool

	err := c.Pull(cmdContext(), opts.Model, opts.Revision, func(msg client.SSEMessage) error {
		switch msg.Type {
		case "progress":
			fmt.Printf("\r\033[2K%s: %3.0f%% (%s / %s)",
				msg.File, msg.Percent,
				humanize.IBytes(uint64(msg.Downloaded)),
				humanize.IBytes(uint64(msg.Total)))
			lastWasProgress = true
		case "status":
			if lastWasProgress {
				fmt.Println()
				lastWasProgress = false
			}
			fmt.Println(msg.Message)
		case "complete":
			if lastWasProgress {
				fmt.Println()
				lastWasProgress = false
			}
		}
		return nil
	})
	if lastWasProgress {
		fmt.Println()
	}
	fmt.Println()

	if err != nil {
		return fmt.Errorf("failed to pull model: %w", err)
	}

	fmt.Printf("✓ Pulled %s\n", opts.Model)
	return nil
}

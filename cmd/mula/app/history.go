package app

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
//
// The history command shows persisted build and run records.
//
// Usage:
//
//	mula history builds [--limit N] [--variant NAME]
//	mula history runs [--limit N] [--alias NAME]
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for viewing history
func NewHistoryCommand(globalOpts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show build and run history",
		Long: `Show persisted image build and instance run records.

Records are kept in the daemon's local database and survive daemon
restarts.`,
		Example: `  # Recent image builds
  mula history builds

  # Runs of one alias
  mula history runs --alias heartmula-3b`,
	}

	cmd.AddCommand(
		newHistoryBuildsCommand(globalOpts),
		newHistoryRunsCommand(globalOpts),
	)

	return cmd
}

// newHistoryBuildsCommand creates the 'history builds' subcommand
func newHistoryBuildsCommand(globalOpts *GlobalOptions) *cobra.Command {
	var limit int
	var variant string

	cmd := &cobra.Command{
		Use:   "builds",
		Short: "Show image build records",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			resp, err := c.BuildHistory(cmdContext(), limit, variant)
			if err != nil {
				return fmt.Errorf("failed to get build history: %w", err)
			}

			if len(resp.Builds) == 0 {
				fmt.Println("No build records found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "WHEN\tVARIANT\tIMAGE\tSTATUS\tDURATION")

			for _, b := range resp.Builds {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					formatRecordTime(b.CreatedAt), b.Variant, b.Image, b.Status, b.Duration)
			}

			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	cmd.Flags().StringVar(&variant, "variant", "", "filter by variant name")

	return cmd
}

// newHistoryRunsCommand creates the 'history runs' subcommand
func newHistoryRunsCommand(globalOpts *GlobalOptions) *cobra.Command {
	var limit int
	var alias string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show instance run records",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			resp, err := c.RunHistory(cmdContext(), limit, alias)
			if err != nil {
				return fmt.Errorf("failed to get run history: %w", err)
			}

			if len(resp.Runs) == 0 {
				fmt.Println("No run records found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "STARTED\tALIAS\tMODEL\tVARIANT\tGPUS\tSTATUS")

			for _, r := range resp.Runs {
				gpus := r.GPUs
				if gpus == "" {
					gpus = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					formatRecordTime(r.StartedAt), r.Alias, r.Model, r.Variant, gpus, r.Status)
			}

			w.Flush()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of records")
	cmd.Flags().StringVar(&alias, "alias", "", "filter by instance alias")

	return cmd
}

// formatRecordTime renders a record timestamp as a relative time.
func formatRecordTime(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return humanize.Time(t)
}

package app

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// LsOptions holds options for the ls command
type LsOptions struct {
	*GlobalOptions

	// Family filters models by family
	Family string

	// All includes models whose weights are not downloaded
	All bool

	// Downloaded lists raw on-disk checkpoints instead of registry models
	Downloaded bool
}

// NewLsCommand creates the ls command.
//
// The ls command lists models known to the daemon with their download
// status, similar to 'docker images'.
//
// Usage:
//
//	mula ls [OPTIONS]
//
// Examples:
//
//	# List downloaded models
//	mula ls
//
//	# List every model in the registry
//	mula ls --all
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing models
func NewLsCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &LsOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:     "ls",
		Short:   "List models",
		Aliases: []string{"models"},
		Long: `List models with their download status.

By default only models with downloaded weights are shown. Use --all to
include every model in the registry, and --family to filter by model
family (heartmula, heartcodec).`,
		Example: `  # List downloaded models
  mula ls

  # List all known models
  mula ls --all

  # List one family
  mula ls --all --family heartmula

  # List raw on-disk checkpoints
  mula ls --downloaded`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Family, "family", "",
		"filter models by family")
	cmd.Flags().BoolVarP(&opts.All, "all", "a", false,
		"include models that are not downloaded")
	cmd.Flags().BoolVar(&opts.Downloaded, "downloaded", false,
		"list on-disk checkpoints instead of registry models")

	return cmd
}

// runLs executes the ls command logic
func runLs(opts *LsOptions) error {
	c := getClient(opts.GlobalOptions)

	if opts.Downloaded {
		return runLsDownloaded(opts)
	}

	resp, err := c.ListModels(cmdContext(), opts.Family, opts.All)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}

	if len(resp.Models) == 0 {
		fmt.Println("No models found")
		fmt.Println()
		fmt.Println("Download a model with: mula pull <model>")
		fmt.Println("See all known models with: mula ls --all")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tFAMILY\tSIZE\tSTATUS\tMODIFIED")

	for _, m := range resp.Models {
		size := "-"
		if m.Size > 0 {
			size = humanize.IBytes(uint64(m.Size))
		}
		modified := "-"
		if m.ModifiedAt != "" {
			if t, err := time.Parse(time.RFC3339, m.ModifiedAt); err == nil {
				modified = humanize.Time(t)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.Name, m.Family, size, m.Status, modified)
	}

	w.Flush()
	return nil
}

// runLsDownloaded lists the checkpoints found in the models directory,
// including any the registry does not know about.
func runLsDownloaded(opts *LsOptions) error {
	c := getClient(opts.GlobalOptions)

	downloaded, err := c.ListDownloadedModels(cmdContext())
	if err != nil {
		return fmt.Errorf("failed to list downloaded models: %w", err)
	}

	if len(downloaded) == 0 {
		fmt.Println("No downloaded models found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSOURCE\tREVISION\tSIZE\tMODIFIED")

	for _, m := range downloaded {
		modified := "-"
		if t, err := time.Parse(time.RFC3339, m.ModifiedAt); err == nil {
			modified = humanize.Time(t)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			m.ID, m.Source, m.Revision, humanize.IBytes(uint64(m.Size)), modified)
	}

	w.Flush()
	return nil
}

package app

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewPsCommand creates the ps command.
//
// The ps command lists service instances, similar to 'docker ps'.
//
// Usage:
//
//	mula ps
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing instances
func NewPsCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List service instances",
		Long: `List all service instances with their state and configuration.

Shows running, starting, ready, unhealthy and stopped instances.`,
		Example: `  mula ps`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs(globalOpts)
		},
	}
}

// runPs executes the ps command logic
func runPs(globalOpts *GlobalOptions) error {
	c := getClient(globalOpts)

	resp, err := c.ListInstances(cmdContext())
	if err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	if len(resp.Instances) == 0 {
		fmt.Println("No instances found")
		fmt.Println()
		fmt.Println("Start a model with: mula start <model>")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tMODEL\tVARIANT\tSTATE\tUPTIME\tPORT")

	for _, inst := range resp.Instances {
		uptime := "-"
		if inst.StartedAt != "" && inst.State != "stopped" {
			if startedAt, err := time.Parse(time.RFC3339, inst.StartedAt); err == nil {
				uptime = formatDuration(time.Since(startedAt))
			}
		}

		port := "-"
		if inst.Port > 0 {
			port = fmt.Sprintf("%d", inst.Port)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Alias, inst.Model, inst.Variant, inst.State, uptime, port)
	}

	w.Flush()
	return nil
}

// formatDuration formats a duration in human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

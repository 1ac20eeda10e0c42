package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// NewVariantsCommand creates the variants command.
//
// The variants command lists the image variant catalog with build status.
//
// Usage:
//
//	mula variants
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for listing variants
func NewVariantsCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List image variants",
		Long: `List the available image variants and whether a local image
has been built for each.

Variants are recipes for the service image: cuda (full GPU), cuda-lite
(GPU with quantized loading and sequential offload defaults) and cpu.
Additional variants can be defined in ~/.mula/variants.yaml.`,
		Example: `  mula variants`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			resp, err := c.ListVariants(cmdContext())
			if err != nil {
				return fmt.Errorf("failed to list variants: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tGPU\tBUILT\tIMAGE\tDESCRIPTION")

			for _, v := range resp.Variants {
				gpu := "no"
				if v.RequiresGPU {
					gpu = "yes"
				}
				built := "no"
				image := "-"
				if v.Built {
					built = "yes"
					image = v.Image
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					v.Name, gpu, built, image, v.Description)
			}

			w.Flush()
			return nil
		},
	}
}

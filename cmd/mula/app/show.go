package app

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/api"
)

// NewShowCommand creates the show command.
//
// The show command displays detailed information about a model or an
// image variant.
//
// Usage:
//
//	mula show NAME
//
// Examples:
//
//	mula show heartmula-3b
//	mula show cuda-lite
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for showing details
func NewShowCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show model or variant details",
		Long: `Show detailed information about a model or an image variant.

The name is looked up as a model first (by ID or upstream repository),
then as a variant.`,
		Example: `  # Show a model
  mula show heartmula-3b

  # Show a variant
  mula show cuda-lite`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(globalOpts, args[0])
		},
	}
}

// runShow executes the show command logic
func runShow(globalOpts *GlobalOptions, name string) error {
	c := getClient(globalOpts)

	model, modelErr := c.ShowModel(cmdContext(), name)
	if modelErr == nil {
		printModel(model)
		return nil
	}

	variant, variantErr := c.ShowVariant(cmdContext(), name)
	if variantErr == nil {
		printVariant(variant)
		return nil
	}

	return fmt.Errorf("no model or variant named %q (%v)", name, modelErr)
}

func printModel(m *api.Model) {
	fmt.Printf("Model: %s\n", m.Name)
	fmt.Printf("  Description:     %s\n", m.Description)
	fmt.Printf("  Family:          %s\n", m.Family)
	if m.Source != "" {
		fmt.Printf("  Source:          %s\n", m.Source)
	}
	if m.Revision != "" {
		fmt.Printf("  Revision:        %s\n", m.Revision)
	}
	if m.Size > 0 {
		fmt.Printf("  Size:            %s\n", humanize.IBytes(uint64(m.Size)))
	}
	if m.MinVRAMGB > 0 {
		fmt.Printf("  Min VRAM:        %d GB\n", m.MinVRAMGB)
	}
	fmt.Printf("  4-bit capable:   %v\n", m.SupportsFourBit)
	if m.DefaultVariant != "" {
		fmt.Printf("  Default variant: %s\n", m.DefaultVariant)
	}
	fmt.Printf("  Status:          %s\n", m.Status)
	if m.ModifiedAt != "" {
		if t, err := time.Parse(time.RFC3339, m.ModifiedAt); err == nil {
			fmt.Printf("  Downloaded:      %s\n", humanize.Time(t))
		}
	}
}

func printVariant(v *api.Variant) {
	fmt.Printf("Variant: %s\n", v.Name)
	fmt.Printf("  Description:        %s\n", v.Description)
	fmt.Printf("  Base image:         %s\n", v.BaseImage)
	fmt.Printf("  Frontend image:     %s\n", v.FrontendImage)
	fmt.Printf("  Requires GPU:       %v\n", v.RequiresGPU)
	fmt.Printf("  4-bit default:      %v\n", v.FourBit)
	fmt.Printf("  Sequential offload: %v\n", v.SequentialOffload)
	if v.Built {
		fmt.Printf("  Built image:        %s\n", v.Image)
	} else {
		fmt.Printf("  Built image:        (not built, run 'mula build %s')\n", v.Name)
	}
}

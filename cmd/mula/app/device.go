package app

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/logger"
)

// NewDeviceCommand creates the device command for GPU detection
//
// The device command provides subcommands for detecting and listing
// GPUs on the system.
//
// Usage:
//
//	mula device list        # List GPUs the daemon detected
//	mula device scan        # Scan local PCI devices
//	mula device supported   # Show supported device types
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for device operations
func NewDeviceCommand(globalOpts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "GPU detection and management",
		Long: `Detect and inspect GPUs usable for the HeartMuLa service.

'device list' asks the daemon what it detected; 'device scan' performs a
local PCI scan without the daemon; 'device supported' shows the device
types the daemon knows how to drive.`,
		Example: `  # List GPUs the daemon detected
  mula device list

  # Scan local PCI devices
  mula device scan

  # Show supported device types
  mula device supported`,
	}

	cmd.AddCommand(
		newDeviceListCommand(globalOpts),
		newDeviceScanCommand(globalOpts),
		newDeviceSupportedCommand(globalOpts),
	)

	return cmd
}

// newDeviceListCommand creates the 'device list' subcommand
func newDeviceListCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List GPUs detected by the daemon",
		Long:  `List the GPUs the mula daemon detected on its host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			resp, err := c.ListDevices(cmdContext())
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}

			gpus, ok := resp.Devices.([]interface{})
			if !ok || len(gpus) == 0 {
				fmt.Println("No GPUs detected on the daemon host.")
				fmt.Println("\nTo see supported device types, run: mula device supported")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tMODEL\tTYPE\tVRAM\tPCI ADDRESS")

			for _, raw := range gpus {
				gpu, ok := raw.(map[string]interface{})
				if !ok {
					continue
				}
				index, _ := gpu["index"].(float64)
				model, _ := gpu["model_name"].(string)
				devType, _ := gpu["device_type"].(string)
				bus, _ := gpu["bus_address"].(string)
				vram := "-"
				if v, ok := gpu["vram_gb"].(float64); ok && v > 0 {
					vram = fmt.Sprintf("%d GB", int(v))
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					int(index), model, devType, vram, bus)
			}

			w.Flush()
			fmt.Printf("\nTotal: %d GPU(s) detected\n", len(gpus))
			return nil
		},
	}
}

// newDeviceScanCommand creates the 'device scan' subcommand
func newDeviceScanCommand(globalOpts *GlobalOptions) *cobra.Command {
	var showAll bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan local PCI devices",
		Long: `Scan this machine's PCI bus for GPUs without going through the
daemon. Useful for diagnosing detection problems.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showAll {
				devices, err := device.ScanPCIDevices()
				if err != nil {
					return fmt.Errorf("failed to scan PCI devices: %w", err)
				}

				if globalOpts.Verbose {
					logger.Info("Found %d PCI devices", len(devices))
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PCI ADDRESS\tVENDOR:DEVICE\tCLASS")
				for _, dev := range devices {
					fmt.Fprintf(w, "%s\t%s:%s\t%s\n",
						dev.BusAddress, dev.VendorID, dev.DeviceID, dev.Class)
				}
				w.Flush()

				fmt.Printf("\nTotal: %d PCI device(s)\n", len(devices))
				return nil
			}

			gpus, err := device.FindGPUs()
			if err != nil {
				return fmt.Errorf("failed to detect GPUs: %w", err)
			}

			if len(gpus) == 0 {
				fmt.Println("No GPUs detected on this system.")
				fmt.Println("\nTo see all PCI devices, use: mula device scan --all")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tMODEL\tGENERATION\tPCI ADDRESS\tVENDOR:DEVICE")
			for _, gpu := range gpus {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s:%s\n",
					gpu.Index, gpu.ModelName, gpu.Generation,
					gpu.BusAddress, gpu.VendorID, gpu.DeviceID)
			}
			w.Flush()

			fmt.Printf("\nTotal: %d GPU(s) detected\n", len(gpus))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showAll, "all", "a", false,
		"show all PCI devices, not just GPUs")

	return cmd
}

// newDeviceSupportedCommand creates the 'device supported' subcommand
func newDeviceSupportedCommand(globalOpts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "Show supported device types",
		Long:  `Display the device types the daemon can run instances on.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := getClient(globalOpts)

			resp, err := c.SupportedDevices(cmdContext())
			if err != nil {
				return fmt.Errorf("failed to get supported devices: %w", err)
			}

			fmt.Println("Supported device types:")
			for _, dt := range resp.DeviceTypes {
				fmt.Printf("  %s\n", dt)
			}
			return nil
		},
	}
}

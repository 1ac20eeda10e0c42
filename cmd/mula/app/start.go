package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/client"
	"github.com/heartmula/mula/internal/runtime"
)

// StartOptions holds options for the start command
type StartOptions struct {
	*GlobalOptions

	// Model is the model name to start
	Model string

	// Alias is the instance alias (defaults to model name)
	Alias string

	// Variant selects the image variant
	Variant string

	// GPUs is the explicit GPU index list (e.g., "0", "0,1")
	GPUs string

	// FourBit forces quantized model loading ("0" or "1")
	FourBit string

	// SequentialOffload forces sequential CPU offload ("0" or "1")
	SequentialOffload string

	// Env holds KEY=VALUE environment overrides for the container
	Env []string

	// MaxConcurrent is the maximum number of concurrent proxied requests
	MaxConcurrent int

	// Detach runs the instance in the background
	Detach bool
}

// NewStartCommand creates the start command.
//
// The start command starts a HeartMuLa service instance for a model.
//
// Usage:
//
//	mula start MODEL [OPTIONS]
//
// Examples:
//
//	# Start a model with its default variant
//	mula start heartmula-3b
//
//	# Start on a specific GPU with quantized loading
//	mula start heartmula-3b --gpus 1 --four-bit 1
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for starting instances
func NewStartCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &StartOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "start MODEL",
		Short: "Start a service instance",
		Long: `Start a HeartMuLa service instance serving a model.

The model's weights must be downloaded ('mula pull') and the variant's
image built ('mula build'). The daemon allocates a GPU and host port,
creates the container and waits for the service's health endpoint.

Restarting a stopped alias resumes its existing container with the
original configuration.

Variant Selection:
  --variant overrides the model's default variant. GPU variants need a
  detected GPU; use the cpu variant otherwise.

GPU Selection:
  --gpus picks explicit GPU indices (e.g. --gpus 0 or --gpus 0,1).
  Without it one free GPU is allocated automatically.

Loading Toggles:
  --four-bit 1 loads the model quantized (less VRAM, slight quality
  cost); --sequential-offload 1 moves idle submodules to CPU memory.
  Both default to the variant's settings.

Foreground vs Background:
  By default the instance runs in foreground mode with log streaming;
  Ctrl+C stops the instance. Use -d/--detach to leave it running in
  the background.`,
		Example: `  # Start in foreground (Ctrl+C stops the instance)
  mula start heartmula-3b

  # Start detached with a custom alias
  mula start heartmula-3b --alias songwriter -d

  # Quantized on GPU 1 with an env override
  mula start heartmula-3b --gpus 1 --four-bit 1 --env HF_HUB_OFFLINE=1

  # Limit concurrent generation requests
  mula start heartmula-3b --max-concurrent 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Model = args[0]
			return runStart(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Alias, "alias", "",
		"instance alias (defaults to model name)")
	cmd.Flags().StringVar(&opts.Variant, "variant", "",
		"image variant to run (defaults to the model's default variant)")
	cmd.Flags().StringVar(&opts.GPUs, "gpus", "",
		"GPU index list (e.g., 0 or 0,1)")
	cmd.Flags().StringVar(&opts.FourBit, "four-bit", "",
		"force quantized model loading (0 or 1)")
	cmd.Flags().StringVar(&opts.SequentialOffload, "sequential-offload", "",
		"force sequential CPU offload (0 or 1)")
	cmd.Flags().StringArrayVar(&opts.Env, "env", nil,
		"container environment override KEY=VALUE (repeatable)")
	cmd.Flags().IntVar(&opts.MaxConcurrent, "max-concurrent", 0,
		"maximum concurrent proxied requests (0 for unlimited)")
	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", false,
		"run instance in the background (default: run in foreground with logs)")

	return cmd
}

// runStart executes the start command logic
func runStart(opts *StartOptions) error {
	c := getClient(opts.GlobalOptions)

	req := api.StartRequest{
		Model:             opts.Model,
		Alias:             opts.Alias,
		Variant:           opts.Variant,
		GPUs:              opts.GPUs,
		FourBit:           opts.FourBit,
		SequentialOffload: opts.SequentialOffload,
		MaxConcurrent:     opts.MaxConcurrent,
		Env:               runtime.ParseEnvOverrides(opts.Env),
	}

	fmt.Printf("Starting %s...\n", opts.Model)
	if opts.GPUs != "" {
		fmt.Printf("GPUs: %s\n", opts.GPUs)
	}
	fmt.Println()

	var lastWasHeartbeat bool
	resp, err := c.StartWithProgress(cmdContext(), req, func(msg client.SSEMessage) error {
		switch msg.Type {
		case "status":
			if lastWasHeartbeat {
				fmt.Println()
				lastWasHeartbeat = false
			}
			fmt.Printf("▸ %s\n", msg.Message)
		case "heartbeat":
			fmt.Print(".")
			lastWasHeartbeat = true
		}
		return nil
	})
	if lastWasHeartbeat {
		fmt.Println()
	}
	if err != nil {
		fmt.Println()
		return err
	}

	alias := resp.Alias
	if alias == "" {
		alias = opts.Model
	}

	fmt.Println()
	fmt.Println("✓ Instance started successfully")
	fmt.Printf("  Alias:    %s\n", alias)
	fmt.Printf("  Endpoint: %s\n", resp.Endpoint)
	fmt.Println()

	if opts.Detach {
		fmt.Println("Use 'mula ps' to view running instances")
		return nil
	}

	// Foreground mode: stream logs until Ctrl+C, then stop the instance.
	// The container is kept so the alias can be restarted later.
	fmt.Printf("Streaming logs from %s (press Ctrl+C to stop the instance)...\n\n", alias)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logDone := make(chan error, 1)
	go func() {
		body, err := c.StreamLogs(ctx, alias, true, "")
		if err != nil {
			logDone <- err
			return
		}
		defer body.Close()
		_, err = io.Copy(os.Stdout, body)
		logDone <- err
	}()

	select {
	case <-sigChan:
		cancel()
		fmt.Printf("\n\nStopping %s...\n", alias)
		if err := c.Stop(cmdContext(), alias); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to stop instance: %v\n", err)
		} else {
			fmt.Printf("✓ Stopped %s (restart with 'mula start %s')\n", alias, opts.Model)
		}
	case err := <-logDone:
		if err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "\nLog stream ended with error: %v\n", err)
		} else {
			fmt.Println("\nLog stream ended")
		}
	}

	return nil
}

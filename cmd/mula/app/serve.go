package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/history"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/server"
)

// ServeOptions holds options for the serve command
type ServeOptions struct {
	*GlobalOptions

	// Host is the daemon host address
	Host string

	// Port is the daemon port
	Port int

	// DataDir is the data directory for models, databases and logs
	DataDir string

	// ConfigDir is the directory containing catalog files (YAML files)
	ConfigDir string
}

// NewServeCommand creates the serve command.
//
// The serve command starts the mula daemon. All other commands talk to it
// over HTTP, and instance containers survive daemon restarts: on startup
// the daemon re-adopts containers carrying its server name label.
//
// Usage:
//
//	mula serve [--host HOST] [--port PORT]
//
// Examples:
//
//	# Start daemon on default port (11780)
//	mula serve
//
//	# Start daemon on all interfaces
//	mula serve --host 0.0.0.0 --port 9090
//
// Parameters:
//   - globalOpts: Global options shared across commands
//
// Returns:
//   - A configured cobra.Command for starting the daemon
func NewServeCommand(globalOpts *GlobalOptions) *cobra.Command {
	opts := &ServeOptions{
		GlobalOptions: globalOpts,
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the mula daemon",
		Long: `Start the mula HTTP daemon for handling API requests.

The daemon builds images, downloads model weights, runs service instance
containers and proxies generation requests to them. Press Ctrl+C to
gracefully shut down; running instance containers are left running and
re-adopted on the next start.`,
		Example: `  # Start daemon on default settings (localhost:11780)
  mula serve

  # Start daemon on all interfaces
  mula serve --host 0.0.0.0

  # Start with verbose logging
  mula serve -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Validate port range
			if opts.Port < 1 || opts.Port > 65535 {
				return fmt.Errorf("invalid port number: %d (must be between 1-65535)", opts.Port)
			}
			return runServe(opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "localhost",
		"daemon host address")
	cmd.Flags().IntVar(&opts.Port, "port", config.DefaultServerPort,
		"daemon port")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "",
		"data directory for models and runtime data (default: ~/.mula/data)")
	cmd.Flags().StringVar(&opts.ConfigDir, "config-dir", "",
		"directory containing catalog files (default: ~/.mula)")

	return cmd
}

// runServe executes the serve command logic.
//
// This function initializes every daemon dependency, starts the HTTP
// server and handles graceful shutdown on interrupt signals.
func runServe(opts *ServeOptions) error {
	if opts.Verbose {
		logger.SetDebug(true)
	}

	cfg := config.NewConfigWithCustomDirs(opts.ConfigDir, opts.DataDir)
	cfg.Server.Host = opts.Host
	cfg.Server.Port = opts.Port

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Get or create the daemon identity. The name ends up in container
	// labels so this daemon only adopts its own containers.
	identity, err := cfg.GetOrCreateDaemonIdentity()
	if err != nil {
		return fmt.Errorf("failed to get daemon identity: %w", err)
	}
	cfg.Server.Name = identity.Name

	if err := logger.EnableFileLogging(cfg.Storage.GetLogsDir()); err != nil {
		logger.Warn("File logging disabled: %v", err)
	}
	defer logger.CloseFile()

	logger.Info("Daemon identity: %s", identity.Name)
	logger.Info("Config directory: %s", cfg.Storage.ConfigDir)
	logger.Info("Data directory: %s", cfg.Storage.DataDir)

	// Model registry: compiled-in specs plus the models.yaml catalog.
	registry := server.InitializeModels(cfg)
	logger.Info("Model registry loaded: %d models", registry.Count())

	deviceManager := device.NewManager()
	if deviceManager.HasGPU() {
		logger.Info("Detected device types: %v", deviceManager.GetDetectedDeviceTypes())
	} else {
		logger.Info("No supported GPU detected, CPU runtime only")
	}

	// History is best-effort: a broken database must not keep the
	// daemon from serving.
	store, err := history.OpenDefault(cfg.Storage.GetDBDir())
	if err != nil {
		logger.Warn("History store unavailable: %v", err)
		store = nil
	} else {
		defer store.Close()
	}

	builder := build.NewBuilder(cfg, store)

	runtimeManager := server.InitializeRuntimeManager(
		context.Background(), cfg, deviceManager.HasGPU(), identity.Name)
	if store != nil {
		runtimeManager.SetHistoryStore(store)
	}
	defer runtimeManager.Shutdown()

	stopWatcher := server.WatchCatalogs(cfg, runtimeManager)
	defer stopWatcher()

	srv := server.NewServer(cfg, registry, deviceManager, runtimeManager,
		builder, store, GetVersion(), BuildTime, GitCommit)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Press Ctrl+C to stop")
		if err := srv.Start(); err != nil {
			if isAddressInUse(err) {
				logger.Error("Port %d is already in use", opts.Port)
				logger.Error("Please stop the existing daemon or use a different port with --port")
				errChan <- fmt.Errorf("address already in use: %s:%d", opts.Host, opts.Port)
				return
			}
			logger.Error("Daemon failed to start: %v", err)
			errChan <- err
			return
		}
		errChan <- nil
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("Received interrupt signal, shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			return fmt.Errorf("daemon shutdown failed: %w", err)
		}

		logger.Info("Daemon stopped successfully")
		return nil

	case err := <-errChan:
		return err
	}
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "bind: address already in use") ||
		strings.Contains(msg, "bind: Only one usage")
}

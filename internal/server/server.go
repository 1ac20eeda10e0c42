// Package server assembles and runs the mula daemon: the HTTP API the
// CLI talks to, plus the reverse proxy in front of service instances.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/config"
	"github.com/heartmula/mula/internal/device"
	"github.com/heartmula/mula/internal/history"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
	"github.com/heartmula/mula/internal/runtime"
	"github.com/heartmula/mula/internal/server/handlers"
)

// Server is the mula daemon.
type Server struct {
	cfg            *config.Config
	httpServer     *http.Server
	modelRegistry  *models.Registry
	deviceManager  *device.Manager
	runtimeManager *runtime.Manager
	builder        *build.Builder
	historyStore   *history.Store
	version        string
	buildTime      string
	gitCommit      string
}

// NewServer creates the daemon around its initialized dependencies.
func NewServer(
	cfg *config.Config,
	registry *models.Registry,
	deviceManager *device.Manager,
	runtimeManager *runtime.Manager,
	builder *build.Builder,
	historyStore *history.Store,
	version, buildTime, gitCommit string,
) *Server {
	return &Server{
		cfg:            cfg,
		modelRegistry:  registry,
		deviceManager:  deviceManager,
		runtimeManager: runtimeManager,
		builder:        builder,
		historyStore:   historyStore,
		version:        version,
		buildTime:      buildTime,
		gitCommit:      gitCommit,
	}
}

// Start binds the listener and serves until Stop.
//
// The HTTP server deliberately has no read/write timeouts: pulls, builds
// and start requests stream for many minutes over SSE, and generation
// requests proxied to instances can run equally long. Idle keep-alive
// connections are still bounded.
func (s *Server) Start() error {
	h := handlers.NewHandler(
		s.cfg,
		s.modelRegistry,
		s.deviceManager,
		s.runtimeManager,
		s.builder,
		s.historyStore,
		s.version,
		s.buildTime,
		s.gitCommit,
	)
	proxy := handlers.NewProxyHandler(h)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/version", h.Version)

	mux.HandleFunc("/api/variants/list", h.ListVariants)
	mux.HandleFunc("/api/variants/show", h.ShowVariant)
	mux.HandleFunc("/api/variants/render", h.RenderVariant)

	mux.HandleFunc("/api/models/list", h.ListModels)
	mux.HandleFunc("/api/models/downloaded", h.ListDownloadedModels)
	mux.HandleFunc("/api/models/show", h.ShowModel)
	mux.HandleFunc("/api/models/pull", h.PullModel)

	mux.HandleFunc("/api/build", h.Build)
	mux.HandleFunc("/api/build/history", h.BuildHistory)
	mux.HandleFunc("/api/images/remove", h.RemoveImage)

	mux.HandleFunc("/api/devices/list", h.ListDevices)
	mux.HandleFunc("/api/devices/supported", h.SupportedDevices)

	mux.HandleFunc("/api/runtime/start", h.StartModel)
	mux.HandleFunc("/api/runtime/instances", h.ListInstances)
	mux.HandleFunc("/api/runtime/check-ready", h.CheckInstanceReady)
	mux.HandleFunc("/api/runtime/stop", h.StopInstance)
	mux.HandleFunc("/api/runtime/remove", h.RemoveInstance)
	mux.HandleFunc("/api/runtime/logs", h.StreamLogs)

	mux.HandleFunc("/api/history/builds", h.BuildHistory)
	mux.HandleFunc("/api/history/runs", h.RunHistory)

	mux.HandleFunc("/api/config/get", h.GetConfig)
	mux.HandleFunc("/api/config/reload", h.ReloadConfig)

	// Everything outside /api/ proxies to a service instance, including
	// the instances' own /health.
	mux.Handle("/", proxy)

	addr := s.cfg.GetServerAddress()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     loggingMiddleware(mux),
		IdleTimeout: 120 * time.Second,
	}

	logger.Info("mula daemon listening on %s", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logger.Info("Shutting down daemon")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs each request with its duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("%s %s %s (%s)", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}

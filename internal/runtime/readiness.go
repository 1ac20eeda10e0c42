package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heartmula/mula/internal/config"
)

// Readiness probe parameters. Model load dominates startup: weights are
// read from the models mount and moved onto the device, which takes
// minutes for the larger checkpoints.
const (
	// ReadinessTimeout bounds how long an instance may take from
	// container start to a passing health check.
	ReadinessTimeout = 300 * time.Second

	// ReadinessInterval is the pause between health probes.
	ReadinessInterval = 2 * time.Second

	// healthProbeTimeout bounds a single probe request.
	healthProbeTimeout = 2 * time.Second
)

// ProbeHealth performs one health check against an instance endpoint.
//
// Returns true when GET on the service health path answers with a 2xx
// status within the probe timeout.
func ProbeHealth(ctx context.Context, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint+config.HealthPath, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitReady polls the instance health endpoint until it passes, the
// timeout elapses or the context is cancelled.
//
// Returns nil once the service answers its health endpoint. The caller
// flips the instance state to ready.
func WaitReady(ctx context.Context, endpoint string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = ReadinessTimeout
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(ReadinessInterval)
	defer ticker.Stop()

	for {
		if ProbeHealth(ctx, endpoint) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service did not become ready within %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

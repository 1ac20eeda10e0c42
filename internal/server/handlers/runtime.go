package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/runtime"
)

// StartModel starts a service instance.
//
// POST /api/runtime/start
//
// With Accept: text/event-stream the start streams progress (image pull
// output, container creation, readiness) and finishes with a complete
// event once the service answers its health endpoint. Without SSE the
// response returns right after the container starts; readiness is polled
// through /api/runtime/check-ready.
func (h *Handler) StartModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		h.WriteError(w, http.StatusBadRequest, "model is required")
		return
	}

	if wantsSSE(r) || req.Stream {
		h.startModelWithSSE(w, r, req)
		return
	}

	inst, err := h.runtimeManager.StartInstance(r.Context(), req, nil)
	if err != nil {
		h.WriteJSON(w, http.StatusOK, api.StartResponse{
			Status:  "failed",
			Message: err.Error(),
		})
		return
	}

	h.WriteJSON(w, http.StatusOK, startResponse(inst))
}

// startModelWithSSE drives a start request over an event stream.
func (h *Handler) startModelWithSSE(w http.ResponseWriter, r *http.Request, req api.StartRequest) {
	sse, err := newSSEWriter(w)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The start keeps going through the manager's own budget even if the
	// client disconnects mid-pull; disconnect only stops the streaming.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	eventCh := make(chan string, 100)
	resultCh := make(chan *runtime.Instance, 1)
	errCh := make(chan error, 1)

	go func() {
		inst, err := h.runtimeManager.StartInstance(ctx, req, eventCh)
		close(eventCh)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- inst
	}()

	sse.Status("Starting %s", req.Model)

	for line := range eventCh {
		sse.Send(sseEvent{Type: sseTypeStatus, Message: line})
	}

	var inst *runtime.Instance
	select {
	case inst = <-resultCh:
	case err := <-errCh:
		sse.Error(err)
		sse.End()
		return
	}

	sse.Status("Container started, waiting for the service to become ready (model load can take minutes)")

	if err := h.streamReadiness(ctx, sse, inst.ID); err != nil {
		sse.Error(err)
		sse.End()
		return
	}

	current, err := h.runtimeManager.Get(ctx, inst.ID)
	if err != nil {
		current = inst
	}
	sse.Send(sseEvent{
		Type:    sseTypeComplete,
		Message: "Instance is ready",
		Result:  startResponse(current),
	})
	sse.End()
}

// streamReadiness polls the instance until it is ready, emitting
// heartbeats so proxies keep the stream open.
func (h *Handler) streamReadiness(ctx context.Context, sse *sseWriter, instanceID string) error {
	deadline := time.Now().Add(runtime.ReadinessTimeout)
	ticker := time.NewTicker(runtime.ReadinessInterval)
	defer ticker.Stop()

	lastHeartbeat := time.Now()

	for {
		inst, err := h.runtimeManager.Get(ctx, instanceID)
		if err != nil {
			return err
		}

		switch inst.State {
		case runtime.StateReady:
			return nil
		case runtime.StateError, runtime.StateStopped:
			return readinessFailure(inst)
		case runtime.StateUnhealthy:
			return readinessFailure(inst)
		}

		if time.Since(lastHeartbeat) >= 5*time.Second {
			sse.Send(sseEvent{Type: sseTypeHeartbeat, Message: string(inst.State)})
			lastHeartbeat = time.Now()
		}

		if time.Now().After(deadline) {
			return readinessTimeout()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// readinessFailure describes an instance that died or went unhealthy
// before passing its first health check.
func readinessFailure(inst *runtime.Instance) error {
	if inst.Error != "" {
		return fmt.Errorf("instance failed to become ready: %s", inst.Error)
	}
	return fmt.Errorf("instance entered state %s before becoming ready", inst.State)
}

func readinessTimeout() error {
	return fmt.Errorf("service did not become ready within %s", runtime.ReadinessTimeout)
}

// ListInstances returns all instances across runtimes.
//
// GET /api/runtime/instances
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	instances, err := h.runtimeManager.List(r.Context())
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	infos := make([]api.InstanceInfo, 0, len(instances))
	for _, inst := range instances {
		infos = append(infos, instanceInfo(inst))
	}

	h.WriteJSON(w, http.StatusOK, api.ListInstancesResponse{Instances: infos})
}

// CheckInstanceReady reports whether an instance answers its health
// endpoint.
//
// GET /api/runtime/check-ready?alias=heartmula-3b
func (h *Handler) CheckInstanceReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alias := r.URL.Query().Get("alias")
	if alias == "" {
		h.WriteError(w, http.StatusBadRequest, "alias parameter is required")
		return
	}

	resp, err := h.runtimeManager.CheckReady(r.Context(), alias)
	if err != nil {
		h.WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// StopInstance stops an instance by alias or ID. The container is
// preserved for restarts.
//
// POST /api/runtime/stop {"alias": "heartmula-3b"}
func (h *Handler) StopInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Alias string `json:"alias"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Alias == "" {
		h.WriteError(w, http.StatusBadRequest, "alias is required")
		return
	}

	if err := h.runtimeManager.StopByAlias(r.Context(), req.Alias); err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// RemoveInstance removes an instance by alias or ID.
//
// POST /api/runtime/remove {"alias": "heartmula-3b", "force": true}
func (h *Handler) RemoveInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Alias string `json:"alias"`
		Force bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Alias == "" {
		h.WriteError(w, http.StatusBadRequest, "alias is required")
		return
	}

	if err := h.runtimeManager.RemoveByAlias(r.Context(), req.Alias, req.Force); err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StreamLogs streams container logs of an instance.
//
// GET /api/runtime/logs?alias=heartmula-3b&follow=true&tail=200
//
// The multiplexed Docker stream is demultiplexed server-side; the client
// receives plain text.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	alias := r.URL.Query().Get("alias")
	if alias == "" {
		h.WriteError(w, http.StatusBadRequest, "alias parameter is required")
		return
	}
	follow := r.URL.Query().Get("follow") == "true"

	stream, err := h.runtimeManager.Logs(r.Context(), alias, runtime.LogOptions{
		Follow: follow,
		Tail:   r.URL.Query().Get("tail"),
	})
	if err != nil {
		h.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	defer stream.Reader.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	out := io.Writer(w)
	if flusher, ok := w.(http.Flusher); ok {
		out = &flushingWriter{w: w, flusher: flusher}
	}

	// Demultiplex stdout/stderr into one plain stream. The copy ends when
	// the client disconnects (request context closes the Docker stream)
	// or the container stops logging.
	if _, err := stdcopy.StdCopy(out, out, stream.Reader); err != nil && r.Context().Err() == nil {
		logger.Debug("Log stream for %s ended: %v", alias, err)
	}
}

// flushingWriter flushes after every write so followed logs appear
// immediately.
type flushingWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (f *flushingWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.flusher.Flush()
	return n, err
}

// startResponse converts an instance to the start wire response.
func startResponse(inst *runtime.Instance) api.StartResponse {
	return api.StartResponse{
		Status:     "success",
		InstanceID: inst.ID,
		Alias:      inst.Alias,
		Endpoint:   inst.Endpoint,
		Port:       inst.HostPort,
	}
}

// instanceInfo converts an instance to its wire form.
func instanceInfo(inst *runtime.Instance) api.InstanceInfo {
	info := api.InstanceInfo{
		ID:      inst.ID,
		Alias:   inst.Alias,
		Model:   inst.ModelID,
		Variant: inst.Variant,
		State:   string(inst.State),
		Port:    inst.HostPort,
		GPUs:    inst.GPUIndices,
		Error:   inst.Error,
	}
	if inst.Endpoint != "" {
		info.Endpoint = inst.Endpoint
	}
	if !inst.StartedAt.IsZero() {
		info.StartedAt = inst.StartedAt.Format(time.RFC3339)
	}
	return info
}

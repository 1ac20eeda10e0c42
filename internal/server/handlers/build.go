package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/build"
	"github.com/heartmula/mula/internal/logger"
)

// Build builds a variant image.
//
// POST /api/build
//
// With Accept: text/event-stream the docker output streams back as
// status events (carrying the CR/LF markers from the pty capture);
// otherwise the request blocks and answers with a single BuildResponse.
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := build.Options{
		Variant: req.Variant,
		Tag:     req.Tag,
		Pin:     req.Pin,
		NoCache: req.NoCache,
	}

	if !wantsSSE(r) {
		result, err := h.builder.Build(r.Context(), opts, nil)
		if err != nil {
			h.WriteJSON(w, http.StatusOK, api.BuildResponse{
				Status:  "failed",
				Message: err.Error(),
			})
			return
		}
		h.WriteJSON(w, http.StatusOK, api.BuildResponse{
			Status: "success",
			Image:  result.Image,
		})
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	eventCh := make(chan string, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for line := range eventCh {
			sse.Send(sseEvent{Type: sseTypeStatus, Message: line})
		}
	}()

	result, err := h.builder.Build(r.Context(), opts, eventCh)
	close(eventCh)
	wg.Wait()

	if err != nil {
		logger.Warn("Build failed: %v", err)
		sse.Error(err)
	} else {
		sse.Send(sseEvent{
			Type:    sseTypeComplete,
			Message: "Build complete",
			Result:  api.BuildResponse{Status: "success", Image: result.Image},
		})
	}
	sse.End()
}

// RemoveImage removes a locally built variant image.
//
// POST /api/images/remove {"variant": "cuda", "force": false}
func (h *Handler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Variant string `json:"variant"`
		Tag     string `json:"tag,omitempty"`
		Force   bool   `json:"force,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Variant == "" {
		h.WriteError(w, http.StatusBadRequest, "variant is required")
		return
	}

	image := build.ImageName(h.cfg.Build.ImageRepository, req.Variant, req.Tag)
	if err := build.RemoveImage(r.Context(), image, req.Force); err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]string{"status": "success", "image": image})
}

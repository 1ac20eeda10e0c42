package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/heartmula/mula/internal/api"
	"github.com/heartmula/mula/internal/logger"
	"github.com/heartmula/mula/internal/models"
)

// PullModel downloads model weights, streaming progress over SSE.
//
// POST /api/models/pull
//
// Event sequence: status (resolving, downloading), progress per file
// chunk (rate limited), heartbeat every 5 seconds while the download
// works silently (large file verification), then complete and end — or
// error.
func (h *Handler) PullModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req api.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Model == "" {
		h.WriteError(w, http.StatusBadRequest, "model is required")
		return
	}

	spec := h.registry.Lookup(req.Model)
	if spec == nil {
		h.WriteError(w, http.StatusNotFound, "model not found: "+req.Model)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	revision := req.Revision
	if revision == "" {
		revision = spec.EffectiveRevision()
	}

	sse.Status("Resolving %s (%s@%s)", spec.ID, spec.SourceID, revision)

	// Cancel the download when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Events funnel through one channel so the SSE writer is never used
	// from two goroutines.
	events := make(chan sseEvent, 100)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range events {
			sse.Send(event)
		}
	}()

	// Heartbeats keep the connection alive through proxies while hashing
	// multi-GB files produces no progress events.
	heartbeatDone := make(chan struct{})
	var heartbeatWG sync.WaitGroup
	heartbeatWG.Add(1)
	go func() {
		defer heartbeatWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ticker.C:
				select {
				case events <- sseEvent{Type: sseTypeHeartbeat}:
				default:
				}
			}
		}
	}()

	progress := newProgressReporter(events)

	client := models.NewHubClient()
	modelPath, err := client.DownloadModel(ctx, spec.SourceID, spec.ID, revision, h.cfg.Storage.GetModelsDir(), progress.report)

	close(heartbeatDone)
	heartbeatWG.Wait()

	if err != nil {
		logger.Warn("Pull failed for %s: %v", spec.ID, err)
		events <- sseEvent{Type: sseTypeError, Message: err.Error()}
	} else {
		events <- sseEvent{
			Type:    sseTypeComplete,
			Message: "Download complete",
			Result:  map[string]string{"model": spec.ID, "path": modelPath},
		}
	}
	events <- sseEvent{Type: sseTypeEnd}
	close(events)
	<-done
}

// progressReporter rate-limits download progress into SSE events.
//
// The hub client calls back for every chunk; forwarding each call floods
// the stream. An event goes out when a file gains at least five percent
// or a second has passed since the last one.
type progressReporter struct {
	mu      sync.Mutex
	events  chan<- sseEvent
	lastAt  map[string]time.Time
	lastPct map[string]float64
}

func newProgressReporter(events chan<- sseEvent) *progressReporter {
	return &progressReporter{
		events:  events,
		lastAt:  make(map[string]time.Time),
		lastPct: make(map[string]float64),
	}
}

// report implements models.ProgressFunc. A panic in here must not kill
// the download, so it is contained.
func (p *progressReporter) report(filename string, downloaded, total int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Progress reporting panicked: %v", r)
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	var percent float64
	if total > 0 {
		percent = float64(downloaded) / float64(total) * 100
	}

	now := time.Now()
	if last, ok := p.lastAt[filename]; ok {
		if percent-p.lastPct[filename] < 5 && now.Sub(last) < time.Second {
			return
		}
	}
	p.lastAt[filename] = now
	p.lastPct[filename] = percent

	event := sseEvent{
		Type:       sseTypeProgress,
		File:       filename,
		Downloaded: downloaded,
		Total:      total,
		Percent:    percent,
	}

	select {
	case p.events <- event:
	default:
		// Drop progress rather than block the download.
	}
}

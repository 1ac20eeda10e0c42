package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/heartmula/mula/internal/logger"
)

// SSE event types shared by the streaming endpoints. Every event is a
// JSON document carried in one `data:` frame.
const (
	sseTypeStatus    = "status"
	sseTypeProgress  = "progress"
	sseTypeHeartbeat = "heartbeat"
	sseTypeError     = "error"
	sseTypeComplete  = "complete"
	sseTypeEnd       = "end"
)

// sseEvent is the wire form of one streamed event.
type sseEvent struct {
	Type string `json:"type"`

	// Message carries status/error text.
	Message string `json:"message,omitempty"`

	// Progress fields, set on progress events.
	File       string  `json:"file,omitempty"`
	Downloaded int64   `json:"downloaded,omitempty"`
	Total      int64   `json:"total,omitempty"`
	Percent    float64 `json:"percent,omitempty"`

	// Result payload, set on complete events.
	Result interface{} `json:"result,omitempty"`
}

// sseWriter serializes events onto an SSE response. Not safe for
// concurrent use; each streaming handler owns one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter sets the SSE headers and wraps the response.
//
// Returns an error when the underlying writer cannot flush, which means
// streaming is impossible (e.g., a buffering middleware in front).
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by connection")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Tell nginx-style proxies not to buffer the stream.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

// Send writes one event frame and flushes it out.
func (s *sseWriter) Send(event sseEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal SSE event: %v", err)
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

// Status sends a status message.
func (s *sseWriter) Status(format string, args ...interface{}) {
	s.Send(sseEvent{Type: sseTypeStatus, Message: fmt.Sprintf(format, args...)})
}

// Error sends an error event.
func (s *sseWriter) Error(err error) {
	s.Send(sseEvent{Type: sseTypeError, Message: err.Error()})
}

// End closes the logical stream. The connection itself is closed by the
// handler returning.
func (s *sseWriter) End() {
	s.Send(sseEvent{Type: sseTypeEnd})
}

// wantsSSE reports whether the client asked for an event stream.
func wantsSSE(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

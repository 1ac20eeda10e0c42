package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartmula/mula/internal/api"
)

func TestHealthRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy"}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", resp.Status)
}

func TestErrorResponseSurfacesDaemonMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found: nope"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ShowModel(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found: nope")
}

func TestConnectionRefusedGivesServeHint(t *testing.T) {
	// Grab a port nothing listens on.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mula serve")
}

func TestStreamParsesEventsUntilEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/event-stream")
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"message\":\"working\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"heartbeat\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"progress\",\"file\":\"model.safetensors\",\"percent\":50}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"end\"}\n\n")
	}))
	defer srv.Close()

	var types []string
	err := NewClient(srv.URL).stream(context.Background(), http.MethodPost, "/api/models/pull", api.PullRequest{Model: "m"},
		func(msg SSEMessage) error {
			types = append(types, msg.Type)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"status", "heartbeat", "progress"}, types)
}

func TestStreamReturnsErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"error\",\"message\":\"pull failed\"}\n\n")
	}))
	defer srv.Close()

	err := NewClient(srv.URL).stream(context.Background(), http.MethodPost, "/api/models/pull", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull failed")
}

func TestStartWithProgressReturnsCompletionPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"message\":\"starting\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"complete\",\"result\":{\"status\":\"success\",\"alias\":\"heartmula-3b\",\"port\":18000}}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"end\"}\n\n")
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).StartWithProgress(context.Background(),
		api.StartRequest{Model: "heartmula-3b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "heartmula-3b", resp.Alias)
	assert.Equal(t, 18000, resp.Port)
}

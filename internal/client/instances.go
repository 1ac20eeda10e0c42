package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/heartmula/mula/internal/api"
)

// Start starts an instance without progress streaming. The response
// returns once the container is up; use CheckReady to await readiness.
func (c *Client) Start(ctx context.Context, req api.StartRequest) (*api.StartResponse, error) {
	var resp api.StartResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/runtime/start", req, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, fmt.Errorf("%s", resp.Message)
	}
	return &resp, nil
}

// StartWithProgress starts an instance over SSE, feeding progress events
// to fn and returning the final start response from the complete event.
func (c *Client) StartWithProgress(ctx context.Context, req api.StartRequest, fn EventFunc) (*api.StartResponse, error) {
	var result *api.StartResponse

	err := c.stream(ctx, http.MethodPost, "/api/runtime/start", req, func(msg SSEMessage) error {
		if msg.Type == "complete" && msg.Result != nil {
			var resp api.StartResponse
			if err := json.Unmarshal(msg.Result, &resp); err == nil {
				result = &resp
			}
		}
		if fn != nil {
			return fn(msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("stream ended without a completion event")
	}
	return result, nil
}

// ListInstances returns all instances the daemon knows about.
func (c *Client) ListInstances(ctx context.Context) (*api.ListInstancesResponse, error) {
	var resp api.ListInstancesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/runtime/instances", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckReady reports whether the instance answers its health endpoint.
func (c *Client) CheckReady(ctx context.Context, alias string) (*api.CheckReadyResponse, error) {
	var resp api.CheckReadyResponse
	path := "/api/runtime/check-ready?alias=" + url.QueryEscape(alias)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop stops an instance by alias or ID.
func (c *Client) Stop(ctx context.Context, alias string) error {
	body := map[string]string{"alias": alias}
	return c.doRequest(ctx, http.MethodPost, "/api/runtime/stop", body, nil)
}

// Remove removes an instance by alias or ID. force removes a running
// instance by stopping it first.
func (c *Client) Remove(ctx context.Context, alias string, force bool) error {
	body := map[string]interface{}{"alias": alias, "force": force}
	return c.doRequest(ctx, http.MethodPost, "/api/runtime/remove", body, nil)
}

// StreamLogs returns the instance's log stream as plain text. The caller
// must close the reader; with follow the stream stays open until the
// context is cancelled.
func (c *Client) StreamLogs(ctx context.Context, alias string, follow bool, tail string) (io.ReadCloser, error) {
	query := url.Values{}
	query.Set("alias", alias)
	if follow {
		query.Set("follow", "true")
	}
	if tail != "" {
		query.Set("tail", tail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/runtime/logs?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.connectionError(err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeErrorResponse(resp)
	}

	return resp.Body, nil
}

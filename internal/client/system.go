package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/heartmula/mula/internal/api"
)

// Health checks whether the daemon is up.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version returns the daemon build information.
func (c *Client) Version(ctx context.Context) (*api.VersionResponse, error) {
	var resp api.VersionResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/version", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BuildHistory returns recent build records.
func (c *Client) BuildHistory(ctx context.Context, limit int, variant string) (*api.HistoryResponse, error) {
	return c.historyRequest(ctx, "/api/history/builds", limit, "variant", variant)
}

// RunHistory returns recent run records.
func (c *Client) RunHistory(ctx context.Context, limit int, alias string) (*api.HistoryResponse, error) {
	return c.historyRequest(ctx, "/api/history/runs", limit, "alias", alias)
}

func (c *Client) historyRequest(ctx context.Context, path string, limit int, filterKey, filterValue string) (*api.HistoryResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if filterValue != "" {
		query.Set(filterKey, filterValue)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp api.HistoryResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDevices returns the GPUs detected on the daemon host.
func (c *Client) ListDevices(ctx context.Context) (*api.DeviceListResponse, error) {
	var resp api.DeviceListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/devices/list", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SupportedDevices returns the device types the daemon supports.
func (c *Client) SupportedDevices(ctx context.Context) (*api.SupportedDevicesResponse, error) {
	var resp api.SupportedDevicesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/devices/supported", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConfig returns the daemon's effective configuration.
func (c *Client) GetConfig(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doRequest(ctx, http.MethodGet, "/api/config/get", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ReloadConfig asks the daemon to re-read its catalog files.
func (c *Client) ReloadConfig(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodPost, "/api/config/reload", struct{}{}, nil)
}

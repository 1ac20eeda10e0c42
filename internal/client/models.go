package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/heartmula/mula/internal/api"
)

// ListModels returns the registry models. family filters by family;
// showAll includes models without downloaded weights.
func (c *Client) ListModels(ctx context.Context, family string, showAll bool) (*api.ListModelsResponse, error) {
	query := url.Values{}
	if family != "" {
		query.Set("family", family)
	}
	if showAll {
		query.Set("all", "true")
	}

	path := "/api/models/list"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp api.ListModelsResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDownloadedModels returns the checkpoints present on disk.
func (c *Client) ListDownloadedModels(ctx context.Context) ([]api.DownloadedModel, error) {
	var resp []api.DownloadedModel
	if err := c.doRequest(ctx, http.MethodGet, "/api/models/downloaded", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ShowModel returns one model by ID or source repository.
func (c *Client) ShowModel(ctx context.Context, name string) (*api.Model, error) {
	var resp api.Model
	path := "/api/models/show?name=" + url.QueryEscape(name)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull downloads model weights, feeding progress events to fn.
func (c *Client) Pull(ctx context.Context, model, revision string, fn EventFunc) error {
	req := api.PullRequest{Model: model, Revision: revision}
	return c.stream(ctx, http.MethodPost, "/api/models/pull", req, fn)
}

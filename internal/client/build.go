package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/heartmula/mula/internal/api"
)

// ListVariants returns the variant catalog with build status.
func (c *Client) ListVariants(ctx context.Context) (*api.VariantListResponse, error) {
	var resp api.VariantListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/variants/list", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ShowVariant returns one variant by name.
func (c *Client) ShowVariant(ctx context.Context, name string) (*api.Variant, error) {
	var resp api.Variant
	path := "/api/variants/show?name=" + url.QueryEscape(name)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Render renders a variant's Dockerfile.
func (c *Client) Render(ctx context.Context, variant string, pin bool) (*api.RenderResponse, error) {
	req := api.RenderRequest{Variant: variant, Pin: pin}
	var resp api.RenderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/variants/render", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Build builds a variant image over SSE, feeding docker output to fn and
// returning the final build response.
func (c *Client) Build(ctx context.Context, req api.BuildRequest, fn EventFunc) (*api.BuildResponse, error) {
	var result *api.BuildResponse

	err := c.stream(ctx, http.MethodPost, "/api/build", req, func(msg SSEMessage) error {
		if msg.Type == "complete" && msg.Result != nil {
			var resp api.BuildResponse
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

// RemoveImage removes a locally built variant image.
func (c *Client) RemoveImage(ctx context.Context, variant, tag string, force bool) error {
	body := map[string]interface{}{"variant": variant, "tag": tag, "force": force}
	return c.doRequest(ctx, http.MethodPost, "/api/images/remove", body, nil)
}

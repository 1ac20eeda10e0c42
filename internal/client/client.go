// Package client implements the HTTP client the CLI uses to talk to the
// mula daemon.
//
// The client mirrors the daemon's endpoint set with typed methods. Plain
// endpoints exchange JSON; long-running operations (pull, build, start)
// consume Server-Sent Event streams and surface each event through a
// callback, so commands can render progress their own way.
package client

import (
	"net/http"
	"strings"
)

// Client talks to one mula daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the daemon at baseURL
// (e.g., "http://localhost:11780").
//
// The underlying HTTP client has no timeout: SSE streams and log follows
// are open-ended. Per-call deadlines come from the caller's context.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// BaseURL returns the daemon address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

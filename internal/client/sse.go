package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SSEMessage is one event from a daemon event stream.
type SSEMessage struct {
	// Type is status, progress, heartbeat, error, complete or end.
	Type string `json:"type"`

	// Message carries status/error text.
	Message string `json:"message,omitempty"`

	// Progress fields.
	File       string  `json:"file,omitempty"`
	Downloaded int64   `json:"downloaded,omitempty"`
	Total      int64   `json:"total,omitempty"`
	Percent    float64 `json:"percent,omitempty"`

	// Result carries the completion payload of complete events.
	Result json.RawMessage `json:"result,omitempty"`
}

// EventFunc handles one stream event. Returning an error aborts the
// stream.
type EventFunc func(SSEMessage) error

// stream performs a request with SSE accept and feeds each event to fn.
//
// The stream ends at the end event, an error event (returned as error),
// EOF or context cancellation. Heartbeats are passed through; callers
// usually ignore them.
func (c *Client) stream(ctx context.Context, method, path string, body interface{}, fn EventFunc) error {
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.connectionError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	// Docker build output lines can be long; give the scanner room.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var msg SSEMessage
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			continue // tolerate malformed frames
		}

		switch msg.Type {
		case "error":
			return fmt.Errorf("%s", msg.Message)
		case "end":
			return nil
		}

		if fn != nil {
			if err := fn(msg); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

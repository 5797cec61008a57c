package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucasew/dircap/internal/errutil"
	"github.com/lucasew/dircap/internal/handler"
)

// StatusError is returned when the control server answers with an unexpected status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the control server of a running watchdog.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a Client for addr, which is either host:port or a full URL.
// If client is nil, a client with a short timeout is used.
func NewClient(addr string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		BaseURL: base,
		HTTP:    client,
	}
}

// Status fetches the watchdog status.
func (c *Client) Status(ctx context.Context) (*handler.StatusResponse, error) {
	var resp handler.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetLimit changes the file-count limit of the running watchdog.
func (c *Client) SetLimit(ctx context.Context, n uint32) error {
	v := int64(n)
	return c.do(ctx, http.MethodPut, "/limit", handler.LimitRequest{Limit: &v}, http.StatusNoContent, nil)
}

// Quit asks the running watchdog to shut down.
func (c *Client) Quit(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/quit", nil, http.StatusAccepted, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach control server at %s: %w", c.BaseURL, err)
	}
	defer errutil.Close(resp.Body, "Failed to close response body")

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

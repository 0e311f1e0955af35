package shelfsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenFunc supplies the bearer token attached to outgoing requests. The
// per-route mutation-auth token itself is owned by an outbound
// interceptor elsewhere; this hook just lets callers plug it in.
type TokenFunc func(ctx context.Context) (string, error)

// Client is the HTTP transport shared by the push and pull pipelines.
type Client struct {
	baseURL string
	token   TokenFunc
	http    *http.Client
}

// DefaultRequestTimeout bounds every push/pull call. A timeout surfaces
// as a cycle failure, i.e. degraded connectivity.
const DefaultRequestTimeout = 30 * time.Second

// NewClient builds a transport for the given base URL. Trailing slashes
// are stripped; an empty base URL leaves the client unconfigured and
// every sync cycle becomes a no-op.
func NewClient(baseURL string, token TokenFunc, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether a server endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// SetHTTPClient replaces the underlying HTTP client (tests install a
// fake transport here).
func (c *Client) SetHTTPClient(h *http.Client) {
	if h != nil {
		c.http = h
	}
}

// postJSON sends a JSON POST and decodes a JSON response. Any transport
// error or non-2xx status is returned as an error; callers treat it as a
// transient network failure.
func (c *Client) postJSON(ctx context.Context, path string, reqBody, respBody any) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.token != nil {
		token, err := c.token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get auth token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Push posts one batch of operations.
func (c *Client) Push(ctx context.Context, ops []ClientSyncOperation) (*PushResponse, error) {
	var resp PushResponse
	if err := c.postJSON(ctx, "/v1/sync/push", &PushRequest{Operations: ops}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull requests all changes since cursor. An empty cursor is sent as
// null, asking for the full stream.
func (c *Client) Pull(ctx context.Context, cursor string) (*PullResponse, error) {
	req := PullRequest{}
	if cursor != "" {
		req.Cursor = &cursor
	}
	var resp PullResponse
	if err := c.postJSON(ctx, "/v1/sync/pull", &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Package client talks to a running stackops service over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/stackops/stackops/internal/engine"
)

// Client is an API client for one service address.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a client for addr, e.g. "http://127.0.0.1:8000". A bare
// host:port gets the http scheme.
func New(addr string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing address %q: %w", addr, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		httpClient: &http.Client{Jar: jar, Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(u.String(), "/"),
	}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("service returned HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("service: %s", errResp.Error)
}

// Login authenticates against a password-protected service. The session
// cookie is kept for later calls.
func (c *Client) Login(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"password": password}, nil)
}

// Status returns the engine status.
func (c *Client) Status(ctx context.Context) (engine.Status, error) {
	var st engine.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st)
	return st, err
}

// Backup triggers a backup and reports whether it was accepted.
func (c *Client) Backup(ctx context.Context, dryRun bool) (bool, error) {
	return c.submit(ctx, "/run", dryRun)
}

// Restore triggers a restore and reports whether it was accepted.
func (c *Client) Restore(ctx context.Context, dryRun bool) (bool, error) {
	return c.submit(ctx, "/restore", dryRun)
}

// SetupFstab triggers the fstab job and reports whether it was accepted.
func (c *Client) SetupFstab(ctx context.Context) (bool, error) {
	return c.submit(ctx, "/setup-fstab", false)
}

// ClearLog empties the job log.
func (c *Client) ClearLog(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/clear-log", nil, nil)
}

func (c *Client) submit(ctx context.Context, endpoint string, dryRun bool) (bool, error) {
	if dryRun {
		endpoint += "?dry=1"
	}
	var resp struct {
		Status   string `json:"status"`
		Accepted bool   `json:"accepted"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, nil, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

// Follow streams job log lines to onLine until ctx is done or the service
// closes the stream.
func (c *Client) Follow(ctx context.Context, onLine func(string)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/log/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return fmt.Errorf("opening log stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return err
		}
		onLine(string(data))
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/digitarald/Gecko-Profiler-Addon/internal/history"
	"github.com/digitarald/Gecko-Profiler-Addon/internal/session"
	"github.com/digitarald/Gecko-Profiler-Addon/pkg/version"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon's control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at addr, which may be a
// host:port or a full URL. A nil httpClient uses http.DefaultClient.
func NewClient(addr string, httpClient *http.Client) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(addr, "/"), http: httpClient}
}

// Health returns nil when the daemon answers its health check.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Status returns the session snapshot.
func (c *Client) Status(ctx context.Context) (*session.Status, error) {
	var st session.Status
	if err := c.do(ctx, http.MethodGet, "/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ToggleStartStop starts or stops the engine.
func (c *Client) ToggleStartStop(ctx context.Context) (*session.Status, error) {
	var st session.Status
	if err := c.do(ctx, http.MethodPost, "/actions/start-stop", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Collect triggers a collection cycle. With wait it returns once the
// profile is delivered.
func (c *Client) Collect(ctx context.Context, wait bool) (*CollectResult, error) {
	path := "/actions/collect"
	if wait {
		path += "?wait=true"
	}
	var res CollectResult
	if err := c.do(ctx, http.MethodPost, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ToggleAutoCapture flips capture-on-page-load and returns the new value.
func (c *Client) ToggleAutoCapture(ctx context.Context) (bool, error) {
	var res AutoCaptureResult
	if err := c.do(ctx, http.MethodPost, "/actions/auto-capture", nil, &res); err != nil {
		return false, err
	}
	return res.Enabled, nil
}

// Restart restarts a running engine.
func (c *Client) Restart(ctx context.Context) (*session.Status, error) {
	var st session.Status
	if err := c.do(ctx, http.MethodPost, "/actions/restart", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Navigate reports a navigation event.
func (c *Client) Navigate(ctx context.Context, ev NavigationEvent) (*NavigationResult, error) {
	var res NavigationResult
	if err := c.do(ctx, http.MethodPost, "/events/navigation", ev, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Symbols resolves the loaded libraries whose names start with prefix.
func (c *Client) Symbols(ctx context.Context, prefix string) ([]session.LibrarySymbols, error) {
	var libs []session.LibrarySymbols
	path := "/symbols?" + url.Values{"prefix": {prefix}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &libs); err != nil {
		return nil, err
	}
	return libs, nil
}

// History lists recorded cycles matching f, newest first.
func (c *Client) History(ctx context.Context, f history.Filter) ([]history.Cycle, error) {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	path := "/history"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var cycles []history.Cycle
	if err := c.do(ctx, http.MethodGet, path, nil, &cycles); err != nil {
		return nil, err
	}
	return cycles, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Package hubclient implements the HTTP wire client for one hub. Hubs
// expose a small polling-only REST API; this package wraps it behind the
// engine's client interface, maps transport failures into a structured
// error taxonomy and throttles the endpoints the hub firmware rate
// limits (property writes, camera snapshots).
package hubclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/graymere/hublink/internal/hub"
	"github.com/graymere/hublink/internal/ratelimit"
)

const (
	defaultTimeout = 10 * time.Second

	// apiKeyHeader carries the hub's provisioned key on every request.
	apiKeyHeader = "X-API-Key"

	// maxSnapshotBytes bounds camera snapshot downloads.
	maxSnapshotBytes = 8 << 20
)

// Client talks to one hub over HTTP. It is safe for concurrent use.
type Client struct {
	baseURL    string
	host       string
	apiKey     string
	httpClient *http.Client
	writes     *ratelimit.Limiter
	snapshots  *ratelimit.Limiter
	logger     hub.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client, used by tests
// against httptest servers.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// New creates a Client for the hub described by cfg.
func New(cfg hub.HubConfig, logger hub.Logger, opts ...Option) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("hubclient: host is required")
	}

	scheme := "http"
	if cfg.UseHTTPS {
		scheme = "https"
	}
	host := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	c := &Client{
		baseURL:    fmt.Sprintf("%s://%s", scheme, host),
		host:       host,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		writes:     ratelimit.NewWriteLimiter(),
		snapshots:  ratelimit.NewSnapshotLimiter(),
		logger:     logger,
	}
	if cfg.UseHTTPS {
		// Hubs serve self-signed certificates on the local network.
		c.httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Factory returns a hub.ClientFactory that builds a Client per hub
// configuration.
func Factory(logger hub.Logger, opts ...Option) hub.ClientFactory {
	return func(cfg hub.HubConfig) (hub.Client, error) {
		return New(cfg, logger, opts...)
	}
}

// Status probes the hub and returns its identity and granted
// permissions.
func (c *Client) Status(ctx context.Context) (*hub.HubInfo, error) {
	var info hub.HubInfo
	if err := c.getJSON(ctx, "status", "/api/v1/status", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Devices fetches the full device list.
func (c *Client) Devices(ctx context.Context) ([]hub.Device, error) {
	var devices []hub.Device
	if err := c.getJSON(ctx, "devices", "/api/v1/devices", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Device fetches a single device by id.
func (c *Client) Device(ctx context.Context, id string) (*hub.Device, error) {
	var d hub.Device
	path := "/api/v1/devices/" + url.PathEscape(id)
	if err := c.getJSON(ctx, "device", path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetDeviceProperties writes property values to a device. Writes to the
// same device are throttled to the hub's advertised cadence and applied
// in submission order.
func (c *Client) SetDeviceProperties(ctx context.Context, id string, props map[string]any) error {
	body, err := json.Marshal(map[string]any{"properties": props})
	if err != nil {
		return fmt.Errorf("hubclient: encoding properties: %w", err)
	}

	path := "/api/v1/devices/" + url.PathEscape(id) + "/properties"
	return c.writes.Do(ctx, id, func(ctx context.Context) error {
		resp, err := c.do(ctx, "set properties", http.MethodPut, path, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	})
}

// Snapshot fetches a still image from a camera device. Snapshots of the
// same device are throttled so the camera firmware is never asked for
// more than one frame per window.
func (c *Client) Snapshot(ctx context.Context, id string) ([]byte, error) {
	path := "/api/v1/devices/" + url.PathEscape(id) + "/snapshot"

	var image []byte
	err := c.snapshots.Do(ctx, id, func(ctx context.Context) error {
		resp, err := c.do(ctx, "snapshot", http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		image, err = io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
		if err != nil {
			return classifyErr("snapshot", c.host, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return image, nil
}

// Close releases the client's throttle workers.
func (c *Client) Close() error {
	c.writes.Close()
	c.snapshots.Close()
	return nil
}

// getJSON performs a GET and decodes the response body into out.
func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("hubclient: decoding %s response: %w", op, err)
	}
	return nil
}

// do executes one request, classifying transport failures and mapping
// non-2xx responses to APIError.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("hubclient: building %s request: %w", op, err)
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyErr(op, c.host, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: readErrorMessage(resp.Body)}
		resp.Body.Close()
		c.logDebug("request failed", "op", op, "status", resp.StatusCode)
		return nil, apiErr
	}
	return resp, nil
}

// readErrorMessage extracts the hub's error envelope, if present.
func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return ""
}

// logDebug logs a debug message if a logger is set.
func (c *Client) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, append([]any{"host", c.host}, args...)...)
	}
}

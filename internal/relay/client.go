package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/liveness"
	"github.com/dcm2610/StellarStack-sub002/internal/models"
	"github.com/dcm2610/StellarStack-sub002/internal/secrets"
)

// CredentialSource yields a node's sealed daemon credential.
type CredentialSource interface {
	SealedCredential(ctx context.Context, nodeID string) (string, error)
}

// Config holds relay client configuration.
type Config struct {
	// RequestTimeout bounds every daemon request end to end.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RequestTimeout: 30 * time.Second,
	}
}

// Client relays commands to node daemons. It checks liveness before
// dialing, authenticates with the node's daemon credential, and maps
// every failure into the relay error taxonomy.
type Client struct {
	httpClient *http.Client
	creds      CredentialSource
	box        *secrets.Box
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a relay client.
func NewClient(cfg *Config, creds CredentialSource, box *secrets.Box, logger *slog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		creds:      creds,
		box:        box,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the liveness clock. Tests only.
func (c *Client) SetClock(now func() time.Time) {
	c.now = now
}

// Call sends one request to the node's daemon and returns the raw JSON
// response body. Offline nodes fail before any network attempt.
func (c *Client) Call(ctx context.Context, node *models.Node, method, path string, body any) (json.RawMessage, error) {
	if !liveness.NodeOnline(node, c.now()) {
		return nil, nodeOffline(node.ID)
	}

	credential, err := c.credential(ctx, node.ID)
	if err != nil {
		return nil, fmt.Errorf("loading node credential: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, node.BaseURL()+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("daemon request failed in transport",
			"node_id", node.ID, "method", method, "path", path, "error", err)
		return nil, transportFailure(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, transportFailure(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := daemonMessage(respBody)
		c.logger.Warn("daemon rejected request",
			"node_id", node.ID, "method", method, "path", path,
			"status", resp.StatusCode, "message", message)
		return nil, daemonError(resp.StatusCode, message)
	}

	return respBody, nil
}

// CreateContainerRequest is the daemon payload for container creation.
type CreateContainerRequest struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Startup     string            `json:"startup,omitempty"`
	Resources   ContainerLimits   `json:"resources"`
	Ports       []PortBinding     `json:"ports"`
	Environment map[string]string `json:"environment,omitempty"`
}

// ContainerLimits mirrors the daemon's resource ceiling fields.
type ContainerLimits struct {
	MemoryMB   int64 `json:"memory_mb"`
	DiskMB     int64 `json:"disk_mb"`
	CPUPercent int64 `json:"cpu_percent"`
}

// PortBinding is one (ip, port) the container binds.
type PortBinding struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// CreateContainer asks the daemon to provision a container and returns
// the daemon-side container id.
func (c *Client) CreateContainer(ctx context.Context, node *models.Node, req *CreateContainerRequest) (string, error) {
	body, err := c.Call(ctx, node, http.MethodPost, "/containers", req)
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decoding create response: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("daemon returned no container id")
	}
	return created.ID, nil
}

// PowerAction relays a power signal for a container.
func (c *Client) PowerAction(ctx context.Context, node *models.Node, remoteID string, action models.PowerAction) error {
	path := fmt.Sprintf("/containers/%s/%s", url.PathEscape(remoteID), action)
	_, err := c.Call(ctx, node, http.MethodPost, path, nil)
	return err
}

// DeleteContainer asks the daemon to tear a container down.
func (c *Client) DeleteContainer(ctx context.Context, node *models.Node, remoteID string, force bool) error {
	path := "/containers/" + url.PathEscape(remoteID)
	if force {
		path += "?force=true"
	}
	_, err := c.Call(ctx, node, http.MethodDelete, path, nil)
	return err
}

// Stats fetches a point-in-time resource snapshot for a container.
func (c *Client) Stats(ctx context.Context, node *models.Node, remoteID string) (json.RawMessage, error) {
	path := fmt.Sprintf("/containers/%s/stats", url.PathEscape(remoteID))
	return c.Call(ctx, node, http.MethodGet, path, nil)
}

func (c *Client) credential(ctx context.Context, nodeID string) (string, error) {
	sealed, err := c.creds.SealedCredential(ctx, nodeID)
	if err != nil {
		return "", err
	}
	return c.box.Open(sealed)
}

// daemonMessage extracts the daemon's error text, preserving it verbatim.
func daemonMessage(body []byte) string {
	var wrapped struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != "" {
		return wrapped.Error
	}
	return strings.TrimSpace(string(body))
}

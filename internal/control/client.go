package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/draftsmith/draftsmith/internal/orchestrator"
)

// AckResponse is the generic acknowledgment body for control actions.
type AckResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// Client talks to a run's control socket.
type Client struct {
	socketPath string
	http       *http.Client
}

// NewClient creates a client for a run's control socket.
func NewClient(runID string) *Client {
	return NewClientWithPath(SocketPath(runID))
}

// NewClientWithPath creates a client for a custom socket path.
func NewClientWithPath(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// Status fetches the run's current snapshot.
func (c *Client) Status(ctx context.Context) (orchestrator.Snapshot, error) {
	var snap orchestrator.Snapshot
	err := c.do(ctx, http.MethodGet, "/status", nil, &snap)
	return snap, err
}

// Interrupt asks the run to stop at the next step boundary.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/interrupt", nil, nil)
}

// Decide delivers a gate decision to a parked run.
func (c *Client) Decide(ctx context.Context, dec orchestrator.Decision) error {
	return c.do(ctx, http.MethodPost, "/decision", dec, nil)
}

// Metrics fetches the run's prometheus exposition text.
func (c *Client) Metrics(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix/metrics", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("connecting to control socket %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("control socket returned %s", resp.Status)
	}
	return string(body), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	// The host is ignored; the transport dials the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to control socket %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ack AckResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && ack.Message != "" {
			return fmt.Errorf("control request failed: %s", ack.Message)
		}
		return fmt.Errorf("control request failed: %s", resp.Status)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

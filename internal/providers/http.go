package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Config holds HTTP provider client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Client is an HTTP client for an operation-style generation provider. It
// implements both SceneGenerator and VideoGenerator; scene and video services
// are separate instances with their own base URLs.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a provider client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// StartScene starts a scene-image generation operation.
func (c *Client) StartScene(ctx context.Context, req SceneRequest) (string, error) {
	return c.start(ctx, req)
}

// StartVideo starts an image-to-video generation operation.
func (c *Client) StartVideo(ctx context.Context, req VideoRequest) (string, error) {
	return c.start(ctx, req)
}

func (c *Client) start(ctx context.Context, payload any) (string, error) {
	var op Operation
	if err := c.do(ctx, http.MethodPost, "/v1/operations", payload, &op); err != nil {
		return "", fmt.Errorf("failed to start operation: %w", err)
	}
	if op.ID == "" {
		return "", fmt.Errorf("provider returned operation without an id")
	}

	c.logger.Debug("Provider operation started",
		slog.String("operation_id", op.ID),
	)

	return op.ID, nil
}

// Poll fetches the current state of an operation.
func (c *Client) Poll(ctx context.Context, operationID string) (Operation, error) {
	var op Operation
	err := c.do(ctx, http.MethodGet, "/v1/operations/"+operationID, nil, &op)
	if err != nil {
		return Operation{}, fmt.Errorf("failed to poll operation %s: %w", operationID, err)
	}
	return op, nil
}

// Cancel asks the provider to stop an in-flight operation. An operation past
// its point of no return may still complete; the result is then orphaned and
// removed by the retention sweep.
func (c *Client) Cancel(ctx context.Context, operationID string) error {
	if err := c.do(ctx, http.MethodPost, "/v1/operations/"+operationID+"/cancel", nil, nil); err != nil {
		return fmt.Errorf("failed to cancel operation %s: %w", operationID, err)
	}

	c.logger.Info("Provider operation canceled",
		slog.String("operation_id", operationID),
	)

	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrOperationNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

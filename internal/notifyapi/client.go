package notifyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cakeshop/order-notifications/internal/domain"
)

// Client posts messages to the Notification API.
// The base URL is injected from config so tests can point to a local stub.
type Client struct {
	baseURL    string
	retryDelay time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// New returns a client for the API rooted at baseURL. timeout bounds each
// HTTP call; retryDelay is the pause before the single retry.
func New(baseURL string, timeout, retryDelay time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryDelay: retryDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Send posts msg to the channel's endpoint. A network error or a 5xx answer
// is retried once after the configured delay; a 4xx answer is returned
// immediately.
func (c *Client) Send(ctx context.Context, ch domain.Channel, msg domain.Message) (*Response, error) {
	if !ch.IsValid() {
		return nil, domain.ErrUnknownChannel
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	url := c.baseURL + ch.Endpoint()

	resp, err := c.post(ctx, url, body)
	if err == nil || !retryable(ctx, err) {
		return resp, err
	}

	c.logger.Warn("notification api call failed, retrying",
		zap.String("url", url),
		zap.Duration("delay", c.retryDelay),
		zap.Error(err),
	)

	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w (retry abandoned: %v)", err, ctx.Err())
	case <-timer.C:
	}

	return c.post(ctx, url, body)
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out struct {
		Success *bool  `json:"success"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	// A 2xx answer with no JSON body is taken as success.
	if decodeErr != nil {
		return &Response{Success: true}, nil
	}
	if out.Success != nil && !*out.Success {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return &Response{Success: true, Message: out.Message}, nil
}

// Ping checks that the Notification API is reachable on its /health route,
// which sits at the service root rather than under the API prefix.
func (c *Client) Ping(ctx context.Context) error {
	root := strings.TrimSuffix(c.baseURL, "/api/notifications")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping notification api: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return &StatusError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// retryable reports whether err is a network-level failure or a 5xx answer.
// A cancelled parent context is never retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

// compile-time check that Client implements Sender
var _ Sender = (*Client)(nil)

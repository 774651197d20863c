package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"slot-shop/internal/metrics"
)

// ErrDelivery indicates the gateway failed to deliver an outbound effect.
// Callers log it as a warning; the underlying state change is already
// committed and must not be rolled back.
var ErrDelivery = errors.New("gateway delivery failed")

// Client provides typed access to the messaging gateway HTTP API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// ClientConfig holds gateway client configuration.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a gateway API client.
func NewClient(cfg ClientConfig, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "gateway"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: metricRegistry,
	}
}

type sendRequest struct {
	RecipientID int64     `json:"recipient_id"`
	MessageID   int64     `json:"message_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	PhotoRef    string    `json:"photo_ref,omitempty"`
	Caption     string    `json:"caption,omitempty"`
	Controls    *Controls `json:"controls,omitempty"`
}

type sendResponse struct {
	OK        bool   `json:"ok"`
	MessageID int64  `json:"message_id"`
	Error     string `json:"error"`
}

// SendMessage delivers a text message and returns the gateway message id.
func (c *Client) SendMessage(ctx context.Context, recipientID int64, text string, controls *Controls) (int64, error) {
	resp, err := c.post(ctx, "message", "/send/message", sendRequest{
		RecipientID: recipientID,
		Text:        text,
		Controls:    controls,
	})
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// SendPhoto delivers a photo with caption and returns the gateway message id.
func (c *Client) SendPhoto(ctx context.Context, recipientID int64, photoRef, caption string, controls *Controls) (int64, error) {
	resp, err := c.post(ctx, "photo", "/send/photo", sendRequest{
		RecipientID: recipientID,
		PhotoRef:    photoRef,
		Caption:     caption,
		Controls:    controls,
	})
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// EditMessage replaces the caption/controls of a previously sent message.
func (c *Client) EditMessage(ctx context.Context, recipientID, messageID int64, caption string, controls *Controls) error {
	_, err := c.post(ctx, "edit", "/message/edit", sendRequest{
		RecipientID: recipientID,
		MessageID:   messageID,
		Caption:     caption,
		Controls:    controls,
	})
	return err
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, recipientID, messageID int64) error {
	_, err := c.post(ctx, "delete", "/message/delete", sendRequest{
		RecipientID: recipientID,
		MessageID:   messageID,
	})
	return err
}

func (c *Client) post(ctx context.Context, kind, path string, payload sendRequest) (*sendResponse, error) {
	started := time.Now()
	resp, err := c.doPost(ctx, path, payload)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.GatewaySends.WithLabelValues(kind, status).Inc()
		c.metrics.GatewayLatency.WithLabelValues(kind, status).Observe(time.Since(started).Seconds())
	}
	return resp, err
}

func (c *Client) doPost(ctx context.Context, path string, payload sendRequest) (*sendResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: gateway base url not configured", ErrDelivery)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrDelivery, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrDelivery, httpResp.StatusCode, truncate(string(raw), 200))
	}

	var resp sendResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDelivery, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", ErrDelivery, resp.Error)
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package ycloud wraps the YCloud WhatsApp REST API for outbound messages.
package ycloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// DefaultBaseURL is the production YCloud API endpoint.
const DefaultBaseURL = "https://api.ycloud.com/v2"

// DefaultTimeout bounds every outbound gateway call. A timed-out send is a
// delivery failure, not retried.
const DefaultTimeout = 30 * time.Second

// Sender is the outbound gateway capability (for production and testing).
type Sender interface {
	SendMessage(ctx context.Context, to, from, body string) error
}

// Opts holds configuration options for the YCloud client.
type Opts struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// Option defines a configuration option for the YCloud client.
type Option func(*Opts)

// WithAPIKey sets the YCloud API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient injects a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.Client = c }
}

// Client sends WhatsApp text messages through the YCloud gateway.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a YCloud client, falling back to the YCLOUD_API_KEY and
// YCLOUD_BASE_URL environment variables for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("YCLOUD_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("YCLOUD_BASE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("YCloud API key must be provided")
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{apiKey: cfg.APIKey, baseURL: cfg.BaseURL, http: cfg.Client}, nil
}

// outboundMessage is the YCloud send payload.
type outboundMessage struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	Type string      `json:"type"`
	Text textPayload `json:"text"`
}

type textPayload struct {
	Body string `json:"body"`
}

// SendMessage sends one WhatsApp text message. Any non-2xx gateway response
// is a delivery failure.
func (c *Client) SendMessage(ctx context.Context, to, from, body string) error {
	if to == "" {
		return models.ErrEmptyRecipient
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	payload, err := json.Marshal(outboundMessage{
		From: from,
		To:   to,
		Type: "text",
		Text: textPayload{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbound message: %w", err)
	}

	url := c.baseURL + "/whatsapp/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	slog.Debug("ycloud.SendMessage: sending", "to", to, "from", from, "bodyLength", len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("ycloud.SendMessage: request failed", "error", err, "to", to)
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("ycloud.SendMessage: gateway rejected message",
			"status", resp.StatusCode, "to", to, "detail", string(detail))
		return fmt.Errorf("%w: status %d", models.ErrDeliveryFailed, resp.StatusCode)
	}

	slog.Info("ycloud.SendMessage: message sent", "to", to)
	return nil
}

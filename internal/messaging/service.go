// Package messaging provides the outbound delivery abstraction: a pluggable
// gateway service, the response splitter, and the paced delivery pipeline.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/ycloud"
)

// Backend identifiers for service construction.
const (
	BackendYCloud    = "ycloud"
	BackendTwilio    = "twilio"
	BackendWhatsmeow = "whatsmeow"
)

// Service defines a pluggable message delivery abstraction over the
// configured WhatsApp gateway.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient phone number to E.164 form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends one message. from is the business number the
	// inbound message was addressed to; backends with a fixed sender
	// identity may ignore it.
	SendMessage(ctx context.Context, to, from, body string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error
}

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// canonicalizePhoneNumber reduces a recipient to E.164 form. At least six
// digits are required.
func canonicalizePhoneNumber(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := phoneNumberRegex.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return "+" + digits, nil
}

// Opts holds configuration options for service construction.
type Opts struct {
	Backend string

	YCloudOpts []ycloud.Option

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string

	WhatsmeowDBDSN  string
	QRPath          string
	UseNumericLogin bool
}

// Option defines a configuration option for service construction.
type Option func(*Opts)

// WithBackend selects the gateway backend (ycloud, twilio or whatsmeow).
func WithBackend(backend string) Option {
	return func(o *Opts) { o.Backend = backend }
}

// WithYCloudOptions forwards options to the YCloud client.
func WithYCloudOptions(opts ...ycloud.Option) Option {
	return func(o *Opts) { o.YCloudOpts = append(o.YCloudOpts, opts...) }
}

// WithTwilioCredentials configures the Twilio backend.
func WithTwilioCredentials(accountSID, authToken, from string) Option {
	return func(o *Opts) {
		o.TwilioAccountSID = accountSID
		o.TwilioAuthToken = authToken
		o.TwilioFrom = from
	}
}

// WithWhatsmeowDBDSN configures the whatsmeow session database.
func WithWhatsmeowDBDSN(dsn string) Option {
	return func(o *Opts) { o.WhatsmeowDBDSN = dsn }
}

// WithQRCodeOutput writes the whatsmeow login QR code to a file.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericLogin uses a numeric whatsmeow login code instead of a QR code.
func WithNumericLogin() Option {
	return func(o *Opts) { o.UseNumericLogin = true }
}

// NewService constructs the configured gateway backend. YCloud is the
// default.
func NewService(opts ...Option) (Service, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendYCloud
	}
	slog.Info("messaging.NewService: constructing gateway service", "backend", cfg.Backend)

	switch cfg.Backend {
	case BackendYCloud:
		client, err := ycloud.NewClient(cfg.YCloudOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create YCloud client: %w", err)
		}
		return NewYCloudService(client), nil
	case BackendTwilio:
		return NewTwilioService(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	case BackendWhatsmeow:
		return NewWhatsmeowService(cfg.WhatsmeowDBDSN, cfg.QRPath, cfg.UseNumericLogin)
	default:
		return nil, fmt.Errorf("unknown messaging backend %q", cfg.Backend)
	}
}

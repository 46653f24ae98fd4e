package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/whatsapp"
)

// whatsmeowSender is the subset of the whatsapp client the service uses.
type whatsmeowSender interface {
	SendMessage(ctx context.Context, to, body string) error
	Disconnect()
}

// WhatsmeowService sends messages through a direct WhatsApp Web session.
// The session is bound to one phone at pairing time, so the per-message
// from argument is ignored.
type WhatsmeowService struct {
	client whatsmeowSender
}

// NewWhatsmeowService creates a whatsmeow-backed messaging service, pairing
// a new session if no device is stored yet.
func NewWhatsmeowService(dbDSN, qrPath string, numericCode bool) (*WhatsmeowService, error) {
	opts := []whatsapp.Option{}
	if dbDSN != "" {
		opts = append(opts, whatsapp.WithDBDSN(dbDSN))
	}
	if qrPath != "" {
		opts = append(opts, whatsapp.WithQRCodeOutput(qrPath))
	}
	if numericCode {
		opts = append(opts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create whatsmeow client: %w", err)
	}
	return &WhatsmeowService{client: client}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
// phone number.
func (s *WhatsmeowService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// SendMessage sends a text message over the WhatsApp Web session.
func (s *WhatsmeowService) SendMessage(ctx context.Context, to, from, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	// whatsmeow JIDs carry bare digits, no plus prefix.
	return s.client.SendMessage(ctx, strings.TrimPrefix(canonical, "+"), body)
}

// Start is a no-op: the session connects during construction.
func (s *WhatsmeowService) Start(ctx context.Context) error {
	slog.Info("WhatsmeowService.Start: session already connected")
	return nil
}

// Stop disconnects the WhatsApp Web session.
func (s *WhatsmeowService) Stop() error {
	s.client.Disconnect()
	return nil
}

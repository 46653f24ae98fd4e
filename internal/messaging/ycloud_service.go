package messaging

import (
	"context"
	"log/slog"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/ycloud"
)

// YCloudService sends WhatsApp messages through the YCloud Business API.
// Inbound traffic arrives over the HTTP webhook, so the service itself has
// no background work.
type YCloudService struct {
	client ycloud.Sender
}

// NewYCloudService creates a YCloud-backed messaging service.
func NewYCloudService(client ycloud.Sender) *YCloudService {
	return &YCloudService{client: client}
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
// phone number.
func (s *YCloudService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// SendMessage sends a text message from the given business number.
func (s *YCloudService) SendMessage(ctx context.Context, to, from, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	return s.client.SendMessage(ctx, canonical, from, body)
}

// Start is a no-op: inbound messages arrive via the webhook.
func (s *YCloudService) Start(ctx context.Context) error {
	slog.Info("YCloudService.Start: ready, inbound handled by webhook")
	return nil
}

// Stop is a no-op.
func (s *YCloudService) Stop() error {
	return nil
}

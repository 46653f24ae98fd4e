package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioSender is the subset of the Twilio REST API the service uses.
// Narrowed to an interface so tests can stub the SDK.
type twilioSender interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioService sends WhatsApp messages through the Twilio API. Twilio
// accounts bind a single WhatsApp sender number, so the per-message from
// argument is ignored in favour of the configured one.
type TwilioService struct {
	api  twilioSender
	from string // in "whatsapp:+1234567890" format
}

// NewTwilioService creates a Twilio-backed messaging service. Missing
// arguments fall back to TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and
// TWILIO_FROM_NUMBER.
func NewTwilioService(accountSID, authToken, from string) (*TwilioService, error) {
	if accountSID == "" {
		accountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if authToken == "" {
		authToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if from == "" {
		from = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if from == "" {
		return nil, fmt.Errorf("twilio from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioService{
		api:  client.Api,
		from: "whatsapp:" + from,
	}, nil
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
// phone number.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhoneNumber(recipient)
}

// SendMessage sends a text message through the Twilio API.
func (s *TwilioService) SendMessage(ctx context.Context, to, from, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + canonical)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.api.CreateMessage(params); err != nil {
		slog.Error("TwilioService.SendMessage: send failed", "to", canonical, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonical, err)
	}
	slog.Debug("TwilioService.SendMessage: message sent", "to", canonical)
	return nil
}

// Start is a no-op: inbound messages arrive via the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	slog.Info("TwilioService.Start: ready, inbound handled by webhook")
	return nil
}

// Stop is a no-op.
func (s *TwilioService) Stop() error {
	return nil
}

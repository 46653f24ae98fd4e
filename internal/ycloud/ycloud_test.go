package ycloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

func TestSendMessage_PayloadAndAuth(t *testing.T) {
	var got outboundMessage
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-API-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if err := c.SendMessage(context.Background(), "+5215550001", "+5215559000", "hola"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	if apiKey != "test-key" {
		t.Errorf("expected X-API-Key header, got %q", apiKey)
	}
	if got.From != "+5215559000" || got.To != "+5215550001" || got.Type != "text" || got.Text.Body != "hola" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestSendMessage_NonOKStatusIsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewClient(WithAPIKey("test-key"), WithBaseURL(srv.URL))
	err := c.SendMessage(context.Background(), "+5215550001", "+5215559000", "hola")
	if !errors.Is(err, models.ErrDeliveryFailed) {
		t.Errorf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestSendMessage_ValidatesInput(t *testing.T) {
	c, _ := NewClient(WithAPIKey("test-key"), WithBaseURL("http://unused"))
	if err := c.SendMessage(context.Background(), "", "+5215559000", "hola"); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if err := c.SendMessage(context.Background(), "+5215550001", "+5215559000", ""); !errors.Is(err, models.ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("YCLOUD_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

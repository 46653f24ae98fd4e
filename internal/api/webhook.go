package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/dispatch"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// webhookHandler receives YCloud webhook deliveries. GET serves the
// gateway's verification handshake; POST ingests events. POST always
// acknowledges with 200 once the payload parses, whatever happens
// downstream, so the gateway does not retry messages we chose to drop.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		s.webhookVerifyHandler(w, r)
	case http.MethodPost:
		s.webhookEventHandler(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// webhookVerifyHandler echoes hub.challenge back as an integer, per the
// YCloud endpoint verification handshake. Without a challenge it reports
// readiness.
func (s *Server) webhookVerifyHandler(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("hub.challenge")
	if challenge == "" {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("webhook ready", nil))
		return
	}
	n, err := strconv.Atoi(challenge)
	if err != nil {
		slog.Warn("Server.webhookVerifyHandler: non-numeric challenge", "challenge", challenge)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("hub.challenge must be an integer"))
		return
	}
	slog.Debug("Server.webhookVerifyHandler: echoing verification challenge", "challenge", n)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(strconv.Itoa(n))); err != nil {
		slog.Error("Server.webhookVerifyHandler: failed to write challenge", "error", err)
	}
}

func (s *Server) webhookEventHandler(w http.ResponseWriter, r *http.Request) {
	var event models.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		slog.Warn("Server.webhookEventHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if event.Type != models.EventTypeInboundMessage || event.InboundMessage == nil {
		slog.Debug("Server.webhookEventHandler: ignoring event", "type", event.Type)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("event ignored", nil))
		return
	}

	msg := event.InboundMessage
	text := extractMessageText(msg)
	if msg.From == "" || text == "" {
		slog.Debug("Server.webhookEventHandler: dropping message without sender or text",
			"from_set", msg.From != "", "type", msg.Type)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("message dropped", nil))
		return
	}

	from, err := s.msgService.ValidateAndCanonicalizeRecipient(msg.From)
	if err != nil {
		slog.Warn("Server.webhookEventHandler: invalid sender number", "error", err)
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("message dropped", nil))
		return
	}

	if err := s.dispatcher.Enqueue(dispatch.Task{From: from, To: msg.To, Text: text}); err != nil {
		slog.Error("Server.webhookEventHandler: failed to enqueue inbound message", "from", from, "error", err)
		// Still acknowledge: a retry would hit the same saturated queue.
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("message accepted", nil))
}

// extractMessageText normalizes the supported message shapes to plain text.
// Interactive replies use the option title, falling back to the option ID
// when the gateway omits the title. Unsupported types yield "".
func extractMessageText(msg *models.InboundMessage) string {
	switch msg.Type {
	case models.MessageTypeText:
		if msg.Text != nil {
			return msg.Text.Body
		}
	case models.MessageTypeInteractive:
		if msg.Interactive == nil {
			return ""
		}
		var reply *models.InteractiveReply
		switch msg.Interactive.Type {
		case models.InteractiveTypeListReply:
			reply = msg.Interactive.ListReply
		case models.InteractiveTypeButtonReply:
			reply = msg.Interactive.ButtonReply
		}
		if reply == nil {
			return ""
		}
		if reply.Title != "" {
			return reply.Title
		}
		return reply.ID
	}
	return ""
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

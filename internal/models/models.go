// Package models defines the core data structures for the insurance agent.
//
// It includes conversation turns, client and policy records, the YCloud
// webhook envelope, and the API response envelope shared across modules.
package models

import (
	"errors"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the agent.
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation. Turns are immutable once
// appended to a history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AuthStateType enumerates the deterministic authentication states persisted
// alongside a conversation history.
type AuthStateType string

const (
	// AuthStateUnauthenticated is the initial state for every identity.
	AuthStateUnauthenticated AuthStateType = "unauthenticated"
	// AuthStateNameConfirmed means a client name was confirmed but no
	// credential has been verified yet.
	AuthStateNameConfirmed AuthStateType = "name_confirmed"
	// AuthStateAuthenticated means the supplied credential matched the
	// stored one for the confirmed client.
	AuthStateAuthenticated AuthStateType = "authenticated"
)

// AuthState records the verified identity for a conversation. ClientName is
// the exact stored client name the state applies to; switching to a
// different client resets the state to unauthenticated.
type AuthState struct {
	State      AuthStateType `json:"state"`
	ClientName string        `json:"client_name,omitempty"`
}

// IsAuthenticatedFor reports whether the state authorizes policy access for
// the given client name.
func (a AuthState) IsAuthenticatedFor(name string) bool {
	return a.State == AuthStateAuthenticated && a.ClientName != "" && a.ClientName == name
}

// ConversationHistory holds the ordered turn sequence (oldest first) and the
// authentication state for one phone number.
type ConversationHistory struct {
	Messages []Turn    `json:"messages"`
	Auth     AuthState `json:"auth"`
}

// Cliente is a client record in the insurance directory. Contrasena is the
// stored access credential; an empty value means the client has no
// credential of their own and the shared default token applies.
type Cliente struct {
	ID         int64  `json:"id"`
	Nombre     string `json:"nombre"`
	Contrasena string `json:"contrasena,omitempty"`
}

// Poliza is one insurance policy belonging to exactly one client. Nullable
// columns map to nil pointers and render as "N/A".
type Poliza struct {
	Numero         string   `json:"numero_de_poliza"`
	VigenciaInicio *string  `json:"vigencia_inicio,omitempty"`
	VigenciaFin    *string  `json:"vigencia_fin,omitempty"`
	TipoSeguro     *string  `json:"tipo_seguro,omitempty"`
	SumaAsegurada  *float64 `json:"suma_asegurada,omitempty"`
	PrimaAnual     *float64 `json:"prima_anual,omitempty"`
	PrimaNeta      *float64 `json:"prima_neta,omitempty"`
	Descripcion    *string  `json:"descripcion,omitempty"`
	Estado         *string  `json:"estado,omitempty"`
}

// Error variables shared across modules for better error handling and
// testability.
var (
	ErrEmptyRecipient  = errors.New("recipient cannot be empty")
	ErrEmptyBody       = errors.New("message body cannot be empty")
	ErrServiceStopped  = errors.New("messaging service is stopped")
	ErrDeliveryFailed  = errors.New("gateway rejected outbound message")
	ErrQueueFull       = errors.New("dispatch queue is full")
	ErrEngineNoChoices = errors.New("no choices returned by completion")
)

// EventTypeInboundMessage is the only webhook event type the server acts on.
const EventTypeInboundMessage = "whatsapp.inbound_message.received"

// Inbound message subtypes recognized by the webhook normalizer.
const (
	MessageTypeText        = "text"
	MessageTypeInteractive = "interactive"

	InteractiveTypeListReply   = "list_reply"
	InteractiveTypeButtonReply = "button_reply"
)

// WebhookEvent is the YCloud webhook envelope.
type WebhookEvent struct {
	Type           string          `json:"type"`
	InboundMessage *InboundMessage `json:"whatsappInboundMessage,omitempty"`
}

// InboundMessage is one inbound WhatsApp message inside a webhook event.
type InboundMessage struct {
	From        string              `json:"from"`
	To          string              `json:"to"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

// TextContent carries the body of a plain text message.
type TextContent struct {
	Body string `json:"body"`
}

// InteractiveContent carries a list or button reply.
type InteractiveContent struct {
	Type        string            `json:"type"`
	ListReply   *InteractiveReply `json:"list_reply,omitempty"`
	ButtonReply *InteractiveReply `json:"button_reply,omitempty"`
}

// InteractiveReply is the option the user selected. Title is the display
// text; ID is the stable option identifier used when the title is empty.
type InteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// APIResponse is the standard JSON envelope returned by HTTP handlers.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Success builds a success response with optional data.
func Success(data interface{}) APIResponse {
	return APIResponse{Status: "ok", Data: data}
}

// SuccessWithMessage builds a success response with a human-readable message.
func SuccessWithMessage(message string, data interface{}) APIResponse {
	return APIResponse{Status: "ok", Message: message, Data: data}
}

// Error builds an error response with a human-readable message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}

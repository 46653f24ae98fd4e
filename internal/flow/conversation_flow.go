// Package flow implements the conversation orchestration loop: bounded
// history retrieval, context assembly, the tool-call cycle against the
// reasoning engine, response extraction, and history persistence.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/directory"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/genai"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/store"
)

// maxToolIterations bounds how many tool-call rounds one exchange may take
// before the loop falls back to the collected tool output.
const maxToolIterations = 5

// ConversationFlow composes the history store, the directory query layer,
// and the reasoning engine into one request/response cycle per inbound
// message. The system prompt is resolved at construction and immutable
// afterwards; a single flow serves all dispatcher workers.
type ConversationFlow struct {
	store        store.Store
	genaiClient  genai.ClientInterface
	directory    *directory.Directory
	systemPrompt string
}

// Opts holds configuration options for the conversation flow.
type Opts struct {
	SystemPromptFile string
}

// Option defines a configuration option for the conversation flow.
type Option func(*Opts)

// WithSystemPromptFile overrides the embedded system contract with the
// contents of a file, loaded once at construction.
func WithSystemPromptFile(path string) Option {
	return func(o *Opts) { o.SystemPromptFile = path }
}

// NewConversationFlow creates a flow with its dependencies.
func NewConversationFlow(st store.Store, genaiClient genai.ClientInterface, dir *directory.Directory, opts ...Option) *ConversationFlow {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ConversationFlow{
		store:        st,
		genaiClient:  genaiClient,
		directory:    dir,
		systemPrompt: loadSystemPrompt(cfg.SystemPromptFile),
	}
}

// loadSystemPrompt resolves the system contract at setup, keeping the
// embedded default when no file is configured or the file is unreadable.
func loadSystemPrompt(path string) string {
	if path == "" {
		return defaultSystemPrompt
	}
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("flow.loadSystemPrompt: failed to read system prompt file, using default",
			"error", err, "file", path)
		return defaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(content))
	if prompt == "" {
		slog.Warn("flow.loadSystemPrompt: system prompt file is empty, using default", "file", path)
		return defaultSystemPrompt
	}
	slog.Info("flow.loadSystemPrompt: system prompt loaded from file", "file", path, "length", len(prompt))
	return prompt
}

// ProcessResponse handles one inbound message for a phone number and returns
// the assistant response to deliver. Engine failures are returned as errors;
// the caller substitutes the apology message. Store failures degrade: a read
// failure means an empty history, a write failure is logged only.
func (f *ConversationFlow) ProcessResponse(ctx context.Context, phoneNumber, userMessage string) (string, error) {
	if f.store == nil || f.genaiClient == nil || f.directory == nil {
		return "", fmt.Errorf("flow dependencies not properly initialized")
	}

	history, err := f.store.LoadHistory(ctx, phoneNumber)
	if err != nil {
		// Degrade to the empty history LoadHistory already returned.
		slog.Error("flow.ProcessResponse: history load failed, continuing with empty history",
			"error", err, "phoneNumber", phoneNumber)
	}

	messages := f.buildMessages(&history, userMessage)
	tools := directory.ToolDefinitions()

	toolResp, err := f.genaiClient.GenerateWithTools(ctx, messages, tools)
	if err != nil {
		return "", fmt.Errorf("reasoning engine invocation failed: %w", err)
	}

	response := toolResp.Content
	for iteration := 0; toolResp.HasToolCalls(); iteration++ {
		if iteration >= maxToolIterations {
			slog.Warn("flow.ProcessResponse: tool iteration limit reached", "phoneNumber", phoneNumber)
			break
		}
		messages = f.handleToolCalls(ctx, phoneNumber, &history, toolResp, messages)
		toolResp, err = f.genaiClient.GenerateWithTools(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("reasoning engine invocation failed after tool execution: %w", err)
		}
		response = toolResp.Content
	}

	if strings.TrimSpace(response) == "" {
		slog.Warn("flow.ProcessResponse: empty assistant content, using fallback", "phoneNumber", phoneNumber)
		response = "¿En qué más puedo ayudarte con tus seguros?"
	}

	// Append the exchange as one user/assistant pair and trim to the
	// window before persisting, so stored state never exceeds the bound.
	now := time.Now()
	history.Messages = append(history.Messages,
		models.Turn{Role: models.RoleUser, Content: userMessage, Timestamp: now},
		models.Turn{Role: models.RoleAssistant, Content: response, Timestamp: now},
	)
	if len(history.Messages) > store.MaxHistoryMessages {
		history.Messages = history.Messages[len(history.Messages)-store.MaxHistoryMessages:]
	}
	if err := f.store.SaveHistory(ctx, phoneNumber, history); err != nil {
		slog.Error("flow.ProcessResponse: failed to save history", "error", err, "phoneNumber", phoneNumber)
		// Best-effort persistence: the response is still returned.
	}

	slog.Info("flow.ProcessResponse: generated response",
		"phoneNumber", phoneNumber, "responseLength", len(response), "authState", history.Auth.State)
	return response, nil
}

// buildMessages assembles system contract + auth status + stored turns +
// the new user turn.
func (f *ConversationFlow) buildMessages(history *models.ConversationHistory, userMessage string) []openai.ChatCompletionMessageParamUnion {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(f.systemPrompt),
		openai.SystemMessage(authStatusMessage(history.Auth)),
	}
	for _, turn := range history.Messages {
		switch turn.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		}
	}
	return append(messages, openai.UserMessage(userMessage))
}

// authStatusMessage renders the persisted authentication state for the
// engine, so it never has to infer the state from prose alone.
func authStatusMessage(auth models.AuthState) string {
	switch auth.State {
	case models.AuthStateAuthenticated:
		return fmt.Sprintf("ESTADO DE AUTENTICACIÓN: el usuario ya verificó su identidad como el cliente %s. Puedes consultar sus pólizas con find_policies sin pedir la contraseña de nuevo. Para cualquier otro cliente el protocolo empieza desde cero.", auth.ClientName)
	case models.AuthStateNameConfirmed:
		return fmt.Sprintf("ESTADO DE AUTENTICACIÓN: el nombre %s fue confirmado pero la contraseña aún no se verifica. Pide la contraseña y usa verify_credential.", auth.ClientName)
	default:
		return "ESTADO DE AUTENTICACIÓN: el usuario NO ha verificado su identidad. Antes de mostrar cualquier póliza debes confirmar su nombre y verificar su contraseña con verify_credential."
	}
}

// handleToolCalls executes the requested tools, mutating the auth state
// where a verification happened, and returns the extended message sequence
// including the assistant tool-call turn and one tool result per call.
func (f *ConversationFlow) handleToolCalls(ctx context.Context, phoneNumber string, history *models.ConversationHistory, toolResp *genai.ToolCallResponse, messages []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, call := range toolResp.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   call.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			},
		})
	}

	// The assistant message carrying the tool calls must precede the tool
	// result messages that reference its tool_call_ids.
	assistantMsg := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(toolResp.Content),
		},
		ToolCalls: toolCalls,
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})

	for _, call := range toolResp.ToolCalls {
		slog.Info("flow.handleToolCalls: executing tool",
			"phoneNumber", phoneNumber, "tool", call.Function.Name, "toolCallID", call.ID)
		result := f.executeToolCall(ctx, history, call)
		if result == "" {
			result = "Herramienta ejecutada."
		}
		messages = append(messages, openai.ToolMessage(result, call.ID))
	}
	return messages
}

// toolArgs are the union of arguments accepted across the tool set.
type toolArgs struct {
	NombreCliente string `json:"nombre_cliente"`
	Contrasena    string `json:"contrasena"`
}

// executeToolCall runs one tool and returns the prose fed back to the
// engine. Unknown tools and bad arguments come back as readable sentences so
// the engine can recover conversationally.
func (f *ConversationFlow) executeToolCall(ctx context.Context, history *models.ConversationHistory, call openai.ChatCompletionMessageToolCall) string {
	var args toolArgs
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			slog.Warn("flow.executeToolCall: malformed tool arguments", "tool", call.Function.Name, "error", err)
			return "Los argumentos de la herramienta no son válidos."
		}
	}

	switch call.Function.Name {
	case directory.ToolListClients:
		return f.directory.ListClients(ctx)
	case directory.ToolFindPolicies:
		return f.findPoliciesGated(ctx, history, args.NombreCliente)
	case directory.ToolVerifyCredential:
		return f.verifyCredential(ctx, history, args.NombreCliente, args.Contrasena)
	default:
		slog.Warn("flow.executeToolCall: unknown tool requested", "tool", call.Function.Name)
		return fmt.Sprintf("La herramienta '%s' no existe.", call.Function.Name)
	}
}

// findPoliciesGated enforces the authentication gate in code: policy data is
// released only when the persisted state is authenticated for a client that
// matches the query.
func (f *ConversationFlow) findPoliciesGated(ctx context.Context, history *models.ConversationHistory, nameQuery string) string {
	if nameQuery == "" {
		return "Falta el nombre del cliente a buscar."
	}
	if !f.queryMatchesAuthenticated(ctx, history.Auth, nameQuery) {
		slog.Info("flow.findPoliciesGated: access denied", "query", nameQuery, "authState", history.Auth.State)
		return "ACCESO DENEGADO: el usuario aún no ha verificado su identidad para ese cliente. Confirma el nombre, pide la contraseña y usa verify_credential antes de consultar pólizas."
	}
	return f.directory.FindPolicies(ctx, nameQuery)
}

func (f *ConversationFlow) queryMatchesAuthenticated(ctx context.Context, auth models.AuthState, nameQuery string) bool {
	if auth.State != models.AuthStateAuthenticated {
		return false
	}
	matches, err := f.directory.FindByName(ctx, nameQuery)
	if err != nil {
		slog.Error("flow.queryMatchesAuthenticated: directory lookup failed", "error", err, "query", nameQuery)
		return false
	}
	for _, m := range matches {
		if auth.IsAuthenticatedFor(m.Nombre) {
			return true
		}
	}
	return false
}

// verifyCredential compares the supplied credential against the stored one
// for the first matching client and advances the persisted state. Only the
// equality judgment is ever returned; the stored credential stays out of the
// model context and out of every outbound message.
func (f *ConversationFlow) verifyCredential(ctx context.Context, history *models.ConversationHistory, nameQuery, supplied string) string {
	if nameQuery == "" || supplied == "" {
		return "Faltan el nombre del cliente o la contraseña a verificar."
	}

	credential, cliente, found, _, err := f.directory.CredentialByName(ctx, nameQuery)
	if err != nil {
		return fmt.Sprintf("Error al consultar la base de datos: %v", err)
	}
	if !found {
		return fmt.Sprintf("No se encontró ningún cliente con el nombre '%s'.", nameQuery)
	}

	if strings.TrimSpace(supplied) == credential {
		history.Auth = models.AuthState{State: models.AuthStateAuthenticated, ClientName: cliente.Nombre}
		slog.Info("flow.verifyCredential: verification succeeded", "cliente", cliente.Nombre)
		return fmt.Sprintf("VERIFICACIÓN EXITOSA: la identidad de %s quedó confirmada. Ya puedes consultar sus pólizas con find_policies.", cliente.Nombre)
	}

	history.Auth = models.AuthState{State: models.AuthStateNameConfirmed, ClientName: cliente.Nombre}
	slog.Info("flow.verifyCredential: verification failed", "cliente", cliente.Nombre)
	return fmt.Sprintf("VERIFICACIÓN FALLIDA: la contraseña no coincide para %s. Pide al usuario que la intente de nuevo o que corrija el nombre.", cliente.Nombre)
}

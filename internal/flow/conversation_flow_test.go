package flow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/directory"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/genai"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
	"github.com/luisrosales852/rodirogRengifoAgente/internal/store"
)

// scriptedEngine returns queued responses in order and records every message
// sequence it was invoked with.
type scriptedEngine struct {
	script []*genai.ToolCallResponse
	err    error
	calls  [][]openai.ChatCompletionMessageParamUnion
}

func (e *scriptedEngine) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	e.calls = append(e.calls, messages)
	if e.err != nil {
		return nil, e.err
	}
	if len(e.script) == 0 {
		return &genai.ToolCallResponse{Content: "sin guion"}, nil
	}
	next := e.script[0]
	e.script = e.script[1:]
	return next, nil
}

func toolCall(id, name, args string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{
		ToolCalls: []openai.ChatCompletionMessageToolCall{
			{ID: id, Function: openai.ChatCompletionMessageToolCallFunction{Name: name, Arguments: args}},
		},
	}
}

func finalContent(text string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{Content: text}
}

// toolResults extracts the tool result contents from a captured message
// sequence.
func toolResults(messages []openai.ChatCompletionMessageParamUnion) []string {
	var out []string
	for _, m := range messages {
		if m.OfTool != nil {
			out = append(out, m.OfTool.Content.OfString.Value)
		}
	}
	return out
}

func newTestFlow(engine genai.ClientInterface) (*ConversationFlow, *store.InMemoryStore) {
	s := store.NewInMemoryStore()
	s.AddCliente(models.Cliente{ID: 1, Nombre: "Ana Torres", Contrasena: "girasol"})
	s.AddCliente(models.Cliente{ID: 2, Nombre: "Luis Rosales"})
	tipo := "Vida"
	s.AddPoliza(1, models.Poliza{Numero: "POL-001", TipoSeguro: &tipo})
	return NewConversationFlow(s, engine, directory.NewDirectory(s)), s
}

func TestProcessResponse_PolicyQueryBeforeAuthIsGated(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{
		toolCall("call_1", directory.ToolFindPolicies, `{"nombre_cliente":"ana"}`),
		finalContent("Primero necesito verificar tu identidad."),
	}}
	f, s := newTestFlow(engine)

	resp, err := f.ProcessResponse(context.Background(), "+5215550001", "muéstrame mis pólizas")
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if resp != "Primero necesito verificar tu identidad." {
		t.Errorf("unexpected response: %q", resp)
	}

	if len(engine.calls) != 2 {
		t.Fatalf("expected 2 engine calls, got %d", len(engine.calls))
	}
	results := toolResults(engine.calls[1])
	if len(results) != 1 || !strings.Contains(results[0], "ACCESO DENEGADO") {
		t.Fatalf("expected access-denied tool result, got %v", results)
	}
	if strings.Contains(results[0], "POL-001") {
		t.Error("policy data leaked through the gate before authentication")
	}

	saved, _ := s.LoadHistory(context.Background(), "+5215550001")
	if saved.Auth.State != models.AuthStateUnauthenticated {
		t.Errorf("expected unauthenticated state after gated query, got %s", saved.Auth.State)
	}
	if len(saved.Messages) != 2 {
		t.Errorf("expected the user/assistant pair persisted, got %d turns", len(saved.Messages))
	}
}

func TestProcessResponse_VerifyThenPoliciesWithoutReprompt(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{
		toolCall("call_1", directory.ToolVerifyCredential, `{"nombre_cliente":"ana","contrasena":"girasol"}`),
		finalContent("Identidad verificada. ¿Qué quieres consultar?"),
	}}
	f, s := newTestFlow(engine)
	ctx := context.Background()

	if _, err := f.ProcessResponse(ctx, "+5215550001", "soy Ana Torres, mi contraseña es girasol"); err != nil {
		t.Fatalf("verification exchange failed: %v", err)
	}

	results := toolResults(engine.calls[1])
	if len(results) != 1 || !strings.Contains(results[0], "VERIFICACIÓN EXITOSA") {
		t.Fatalf("expected success judgment, got %v", results)
	}
	if strings.Contains(results[0], "girasol") {
		t.Error("stored credential must never appear in a tool result")
	}

	saved, _ := s.LoadHistory(ctx, "+5215550001")
	if !saved.Auth.IsAuthenticatedFor("Ana Torres") {
		t.Fatalf("expected authenticated state for Ana Torres, got %+v", saved.Auth)
	}

	// Next turn: policy data flows without re-requesting credentials.
	engine.script = []*genai.ToolCallResponse{
		toolCall("call_2", directory.ToolFindPolicies, `{"nombre_cliente":"ana"}`),
		finalContent("Tienes una póliza de Vida: POL-001."),
	}
	resp, err := f.ProcessResponse(ctx, "+5215550001", "muéstrame mis pólizas")
	if err != nil {
		t.Fatalf("policy exchange failed: %v", err)
	}
	if !strings.Contains(resp, "POL-001") {
		t.Errorf("expected policy response, got %q", resp)
	}
	results = toolResults(engine.calls[3])
	if len(results) != 1 || !strings.Contains(results[0], "POL-001") {
		t.Errorf("expected policy data in tool result after authentication, got %v", results)
	}
}

func TestProcessResponse_WrongCredential(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{
		toolCall("call_1", directory.ToolVerifyCredential, `{"nombre_cliente":"ana","contrasena":"equivocada"}`),
		finalContent("La contraseña no coincide, intenta de nuevo."),
	}}
	f, s := newTestFlow(engine)

	if _, err := f.ProcessResponse(context.Background(), "+5215550001", "mi contraseña es equivocada"); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	results := toolResults(engine.calls[1])
	if len(results) != 1 || !strings.Contains(results[0], "VERIFICACIÓN FALLIDA") {
		t.Fatalf("expected failure judgment, got %v", results)
	}
	if strings.Contains(results[0], "girasol") {
		t.Error("stored credential must never appear in a tool result")
	}

	saved, _ := s.LoadHistory(context.Background(), "+5215550001")
	if saved.Auth.State != models.AuthStateNameConfirmed || saved.Auth.ClientName != "Ana Torres" {
		t.Errorf("expected name_confirmed retry state, got %+v", saved.Auth)
	}
}

func TestProcessResponse_AccountSwitchIsGated(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{
		toolCall("call_1", directory.ToolFindPolicies, `{"nombre_cliente":"luis"}`),
		finalContent("Necesito verificar la identidad de Luis primero."),
	}}
	f, s := newTestFlow(engine)
	ctx := context.Background()

	// Ana is already authenticated; asking for Luis restarts the protocol.
	s.SaveHistory(ctx, "+5215550001", models.ConversationHistory{
		Auth: models.AuthState{State: models.AuthStateAuthenticated, ClientName: "Ana Torres"},
	})

	if _, err := f.ProcessResponse(ctx, "+5215550001", "ahora quiero ver las pólizas de Luis"); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	results := toolResults(engine.calls[1])
	if len(results) != 1 || !strings.Contains(results[0], "ACCESO DENEGADO") {
		t.Errorf("expected gate for a different account, got %v", results)
	}
}

func TestProcessResponse_EngineFailurePropagates(t *testing.T) {
	engine := &scriptedEngine{err: errors.New("upstream unavailable")}
	f, s := newTestFlow(engine)

	_, err := f.ProcessResponse(context.Background(), "+5215550001", "hola")
	if err == nil {
		t.Fatal("expected error when the engine fails")
	}
	if s.RecordCount() != 0 {
		t.Errorf("no history should be persisted for a failed exchange, got %d records", s.RecordCount())
	}
}

func TestProcessResponse_TrimsBeforeSave(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{finalContent("ok")}}
	f, s := newTestFlow(engine)
	ctx := context.Background()

	long := models.ConversationHistory{}
	for i := 0; i < store.MaxHistoryMessages; i++ {
		long.Messages = append(long.Messages, models.Turn{Role: models.RoleUser, Content: "viejo", Timestamp: time.Now()})
	}
	s.SaveHistory(ctx, "+5215550001", long)

	if _, err := f.ProcessResponse(ctx, "+5215550001", "nuevo mensaje"); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}

	saved, _ := s.LoadHistory(ctx, "+5215550001")
	if len(saved.Messages) != store.MaxHistoryMessages {
		t.Fatalf("expected %d turns after trim, got %d", store.MaxHistoryMessages, len(saved.Messages))
	}
	tail := saved.Messages[len(saved.Messages)-2:]
	if tail[0].Content != "nuevo mensaje" || tail[1].Content != "ok" {
		t.Errorf("expected the new exchange at the tail, got %v", tail)
	}
}

func TestProcessResponse_SystemContractAndAuthStatusLeadContext(t *testing.T) {
	engine := &scriptedEngine{script: []*genai.ToolCallResponse{finalContent("hola")}}
	f, _ := newTestFlow(engine)

	if _, err := f.ProcessResponse(context.Background(), "+5215550001", "hola"); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	msgs := engine.calls[0]
	if len(msgs) < 3 {
		t.Fatalf("expected system+status+user messages, got %d", len(msgs))
	}
	if msgs[0].OfSystem == nil || !strings.Contains(msgs[0].OfSystem.Content.OfString.Value, "asistente de seguros") {
		t.Error("first message must carry the system contract")
	}
	if msgs[1].OfSystem == nil || !strings.Contains(msgs[1].OfSystem.Content.OfString.Value, "ESTADO DE AUTENTICACIÓN") {
		t.Error("second message must carry the authentication status")
	}
}

// steadyEngine is safe for concurrent use: it always answers with fixed
// content and never mutates shared state.
type steadyEngine struct{}

func (steadyEngine) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	return &genai.ToolCallResponse{Content: "Hola, ¿en qué puedo ayudarte?"}, nil
}

func TestNewConversationFlow_ResolvesPromptAtConstruction(t *testing.T) {
	f, _ := newTestFlow(steadyEngine{})
	if f.systemPrompt == "" {
		t.Fatal("expected the embedded system contract to be loaded during construction")
	}
	if f.systemPrompt != defaultSystemPrompt {
		t.Error("expected the embedded default contract when no file is configured")
	}

	promptFile := filepath.Join(t.TempDir(), "prompt.txt")
	if err := os.WriteFile(promptFile, []byte("  Eres un agente de prueba.  \n"), 0o644); err != nil {
		t.Fatalf("failed to write prompt file: %v", err)
	}
	s := store.NewInMemoryStore()
	f = NewConversationFlow(s, steadyEngine{}, directory.NewDirectory(s), WithSystemPromptFile(promptFile))
	if f.systemPrompt != "Eres un agente de prueba." {
		t.Errorf("expected trimmed file contents as system prompt, got %q", f.systemPrompt)
	}

	f = NewConversationFlow(s, steadyEngine{}, directory.NewDirectory(s), WithSystemPromptFile(filepath.Join(t.TempDir(), "missing.txt")))
	if f.systemPrompt != defaultSystemPrompt {
		t.Error("expected the embedded default contract when the file is unreadable")
	}
}

func TestProcessResponse_ConcurrentSendersShareOneFlow(t *testing.T) {
	f, s := newTestFlow(steadyEngine{})

	const senders = 8
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		phone := fmt.Sprintf("+521555000%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.ProcessResponse(context.Background(), phone, "hola")
			if err != nil {
				errs <- err
				return
			}
			if resp != "Hola, ¿en qué puedo ayudarte?" {
				errs <- fmt.Errorf("unexpected response for %s: %q", phone, resp)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	for i := 0; i < senders; i++ {
		phone := fmt.Sprintf("+521555000%d", i)
		saved, err := s.LoadHistory(context.Background(), phone)
		if err != nil {
			t.Fatalf("LoadHistory(%s) failed: %v", phone, err)
		}
		if len(saved.Messages) != 2 {
			t.Errorf("expected one persisted exchange for %s, got %d turns", phone, len(saved.Messages))
		}
	}
}

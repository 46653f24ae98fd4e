package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

func newTempSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "sqlite_store_test_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	dbPath := filepath.Join(tempDir, "test.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return s, dbPath
}

// TestSQLiteStore_RestartRoundTrip saves a conversation with auth state,
// closes the store, reopens the same database file, and verifies everything
// survived the restart.
func TestSQLiteStore_RestartRoundTrip(t *testing.T) {
	s1, dbPath := newTempSQLiteStore(t)
	ctx := context.Background()

	history := models.ConversationHistory{
		Messages: makeTurns(6),
		Auth:     models.AuthState{State: models.AuthStateAuthenticated, ClientName: "Ana Torres"},
	}
	if err := s1.SaveHistory(ctx, "+5215550002", history); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore (reopen) failed: %v", err)
	}
	defer s2.Close()

	loaded, err := s2.LoadHistory(ctx, "+5215550002")
	if err != nil {
		t.Fatalf("LoadHistory after reopen failed: %v", err)
	}
	if len(loaded.Messages) != len(history.Messages) {
		t.Fatalf("expected %d turns after reopen, got %d", len(history.Messages), len(loaded.Messages))
	}
	for i := range history.Messages {
		if loaded.Messages[i].Role != history.Messages[i].Role || loaded.Messages[i].Content != history.Messages[i].Content {
			t.Errorf("turn %d mismatch: want %v, got %v", i, history.Messages[i], loaded.Messages[i])
		}
	}
	if !loaded.Auth.IsAuthenticatedFor("Ana Torres") {
		t.Errorf("expected persisted auth state for Ana Torres, got %+v", loaded.Auth)
	}
}

// TestSQLiteStore_UpsertIdempotence verifies that two saves for the same
// phone number leave exactly one row, with the latest save winning.
func TestSQLiteStore_UpsertIdempotence(t *testing.T) {
	s, _ := newTempSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	first := models.ConversationHistory{Messages: makeTurns(2)}
	second := models.ConversationHistory{
		Messages: makeTurns(4),
		Auth:     models.AuthState{State: models.AuthStateNameConfirmed, ClientName: "Luis Rosales"},
	}

	if err := s.SaveHistory(ctx, "+5215550003", first); err != nil {
		t.Fatalf("first SaveHistory failed: %v", err)
	}
	if err := s.SaveHistory(ctx, "+5215550003", second); err != nil {
		t.Fatalf("second SaveHistory failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_memory WHERE phone_number = ?`, "+5215550003").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row after two saves, got %d", count)
	}

	loaded, err := s.LoadHistory(ctx, "+5215550003")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded.Messages) != 4 {
		t.Errorf("expected latest save to win with 4 turns, got %d", len(loaded.Messages))
	}
	if loaded.Auth.State != models.AuthStateNameConfirmed || loaded.Auth.ClientName != "Luis Rosales" {
		t.Errorf("expected latest auth state to win, got %+v", loaded.Auth)
	}
}

// TestSQLiteStore_TrimsAtBound verifies the history bound is enforced
// through the real persistence path, keeping the newest turns.
func TestSQLiteStore_TrimsAtBound(t *testing.T) {
	s, _ := newTempSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	history := models.ConversationHistory{Messages: makeTurns(MaxHistoryMessages + 10)}
	if err := s.SaveHistory(ctx, "+5215550001", history); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}

	loaded, err := s.LoadHistory(ctx, "+5215550001")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded.Messages) != MaxHistoryMessages {
		t.Fatalf("expected %d turns after trim, got %d", MaxHistoryMessages, len(loaded.Messages))
	}
	if loaded.Messages[0].Content != history.Messages[10].Content {
		t.Errorf("expected oldest kept turn %q, got %q", history.Messages[10].Content, loaded.Messages[0].Content)
	}
}

// TestSQLiteStore_LoadHistoryMissingRow verifies an unknown phone number
// yields an empty, unauthenticated history with no error.
func TestSQLiteStore_LoadHistoryMissingRow(t *testing.T) {
	s, _ := newTempSQLiteStore(t)
	defer s.Close()

	loaded, err := s.LoadHistory(context.Background(), "+5215559999")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("expected empty history, got %d turns", len(loaded.Messages))
	}
	if loaded.Auth.State != models.AuthStateUnauthenticated {
		t.Errorf("expected unauthenticated state, got %s", loaded.Auth.State)
	}
}

// TestSQLiteStore_CorruptHistoryStartsFresh verifies a row with unparseable
// history JSON degrades to an empty message list instead of failing the load,
// while the stored auth state is still honored.
func TestSQLiteStore_CorruptHistoryStartsFresh(t *testing.T) {
	s, _ := newTempSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_memory (phone_number, history_json, auth_state, auth_client) VALUES (?, ?, ?, ?)`,
		"+5215550004", `{not json`, string(models.AuthStateAuthenticated), "Ana Torres")
	if err != nil {
		t.Fatalf("seeding corrupt row failed: %v", err)
	}

	loaded, err := s.LoadHistory(ctx, "+5215550004")
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(loaded.Messages) != 0 {
		t.Errorf("expected fresh history for corrupt JSON, got %d turns", len(loaded.Messages))
	}
	if !loaded.Auth.IsAuthenticatedFor("Ana Torres") {
		t.Errorf("expected auth state to survive corrupt history, got %+v", loaded.Auth)
	}
}

// TestSQLiteStore_DirectoryQueries seeds clients and policies, exercising the
// case-insensitive name search and the nullable policy column handling.
func TestSQLiteStore_DirectoryQueries(t *testing.T) {
	s, _ := newTempSQLiteStore(t)
	defer s.Close()
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clientes (id, nombre, contrasena) VALUES (1, 'Ana Torres', 'girasol'), (2, 'Luis Rosales', NULL)`)
	if err != nil {
		t.Fatalf("seeding clientes failed: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO polizas (id_cliente, numero_de_poliza, vigencia_inicio, vigencia_fin, tipo_seguro,
		                     suma_asegurada, prima_anual, prima_neta, descripcion, estado)
		VALUES (1, 'POL-001', '2024-01-01', '2025-01-01', 'Vida', 500000, 12000, 10500, 'Seguro de vida', 'activa'),
		       (1, 'POL-002', NULL, NULL, NULL, NULL, NULL, NULL, NULL, NULL)`)
	if err != nil {
		t.Fatalf("seeding polizas failed: %v", err)
	}

	all, err := s.ListClientes(ctx)
	if err != nil {
		t.Fatalf("ListClientes failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 clientes, got %d", len(all))
	}
	// A NULL contrasena comes back as an empty string via COALESCE.
	if all[1].Nombre != "Luis Rosales" || all[1].Contrasena != "" {
		t.Errorf("expected Luis Rosales with empty contrasena, got %+v", all[1])
	}

	matches, err := s.FindClientesByName(ctx, "tORRes")
	if err != nil {
		t.Fatalf("FindClientesByName failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Nombre != "Ana Torres" {
		t.Errorf("expected Ana Torres, got %+v", matches)
	}

	polizas, err := s.PolizasForCliente(ctx, 1)
	if err != nil {
		t.Fatalf("PolizasForCliente failed: %v", err)
	}
	if len(polizas) != 2 {
		t.Fatalf("expected 2 polizas, got %d", len(polizas))
	}

	full := polizas[0]
	if full.Numero != "POL-001" {
		t.Fatalf("expected POL-001 first, got %q", full.Numero)
	}
	if full.TipoSeguro == nil || *full.TipoSeguro != "Vida" {
		t.Errorf("expected tipo_seguro 'Vida', got %v", full.TipoSeguro)
	}
	if full.SumaAsegurada == nil || *full.SumaAsegurada != 500000 {
		t.Errorf("expected suma_asegurada 500000, got %v", full.SumaAsegurada)
	}

	sparse := polizas[1]
	if sparse.Numero != "POL-002" {
		t.Fatalf("expected POL-002 second, got %q", sparse.Numero)
	}
	if sparse.VigenciaInicio != nil || sparse.VigenciaFin != nil || sparse.TipoSeguro != nil ||
		sparse.SumaAsegurada != nil || sparse.PrimaAnual != nil || sparse.PrimaNeta != nil ||
		sparse.Descripcion != nil || sparse.Estado != nil {
		t.Errorf("expected all nullable columns to scan as nil, got %+v", sparse)
	}
}

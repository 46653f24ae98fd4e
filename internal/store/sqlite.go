// Package store provides storage backends for the insurance agent.
//
// This file implements the SQLite-backed store for single-node deployments.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation history and serves directory reads from
// a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite store from the provided options.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating store", "DSN_set", cfg.SQLiteDSN != "")
	if cfg.SQLiteDSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("sqlite3", cfg.SQLiteDSN)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: migrations applied")
	return &SQLiteStore{db: db}, nil
}

// LoadHistory returns the conversation history for a phone number. A missing
// row yields an empty history.
func (s *SQLiteStore) LoadHistory(ctx context.Context, phoneNumber string) (models.ConversationHistory, error) {
	history := emptyHistory()

	var historyJSON []byte
	var authState, authClient string
	err := s.db.QueryRowContext(ctx,
		`SELECT history_json, auth_state, auth_client FROM chat_memory WHERE phone_number = ?`,
		phoneNumber).Scan(&historyJSON, &authState, &authClient)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore.LoadHistory: no record", "phoneNumber", phoneNumber)
		return history, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.LoadHistory failed", "error", err, "phoneNumber", phoneNumber)
		return history, fmt.Errorf("failed to load history for %s: %w", phoneNumber, err)
	}

	if err := json.Unmarshal(historyJSON, &history.Messages); err != nil {
		slog.Error("SQLiteStore.LoadHistory: corrupt history JSON, starting fresh", "error", err, "phoneNumber", phoneNumber)
		history.Messages = nil
	}
	history.Auth = models.AuthState{State: models.AuthStateType(authState), ClientName: authClient}
	if history.Auth.State == "" {
		history.Auth.State = models.AuthStateUnauthenticated
	}
	return history, nil
}

// SaveHistory upserts the history for a phone number, trimming first so the
// persisted turn count never exceeds the bound.
func (s *SQLiteStore) SaveHistory(ctx context.Context, phoneNumber string, history models.ConversationHistory) error {
	history = trimHistory(history)
	historyJSON, err := json.Marshal(history.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_memory (phone_number, history_json, auth_state, auth_client, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (phone_number)
		DO UPDATE SET
			history_json = excluded.history_json,
			auth_state = excluded.auth_state,
			auth_client = excluded.auth_client,
			updated_at = excluded.updated_at`,
		phoneNumber, historyJSON, string(history.Auth.State), history.Auth.ClientName, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore.SaveHistory failed", "error", err, "phoneNumber", phoneNumber)
		return fmt.Errorf("failed to save history for %s: %w", phoneNumber, err)
	}
	slog.Debug("SQLiteStore.SaveHistory succeeded", "phoneNumber", phoneNumber, "turns", len(history.Messages))
	return nil
}

// ListClientes returns every client in the directory.
func (s *SQLiteStore) ListClientes(ctx context.Context) ([]models.Cliente, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nombre, COALESCE(contrasena, '') FROM clientes ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore.ListClientes query failed", "error", err)
		return nil, fmt.Errorf("failed to query clientes: %w", err)
	}
	defer rows.Close()
	return scanClientes(rows)
}

// FindClientesByName returns clients whose name contains the query,
// case-insensitively.
func (s *SQLiteStore) FindClientesByName(ctx context.Context, nameQuery string) ([]models.Cliente, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nombre, COALESCE(contrasena, '') FROM clientes
		 WHERE LOWER(nombre) LIKE '%' || LOWER(?) || '%' ORDER BY id`,
		nameQuery)
	if err != nil {
		slog.Error("SQLiteStore.FindClientesByName query failed", "error", err, "query", nameQuery)
		return nil, fmt.Errorf("failed to search clientes: %w", err)
	}
	defer rows.Close()
	return scanClientes(rows)
}

// PolizasForCliente returns all policies belonging to one client.
func (s *SQLiteStore) PolizasForCliente(ctx context.Context, clienteID int64) ([]models.Poliza, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT numero_de_poliza, vigencia_inicio, vigencia_fin, tipo_seguro,
		       suma_asegurada, prima_anual, prima_neta, descripcion, estado
		FROM polizas WHERE id_cliente = ? ORDER BY id`, clienteID)
	if err != nil {
		slog.Error("SQLiteStore.PolizasForCliente query failed", "error", err, "clienteID", clienteID)
		return nil, fmt.Errorf("failed to query polizas: %w", err)
	}
	defer rows.Close()
	return scanPolizas(rows)
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// Package store provides storage backends for the insurance agent.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation history and serves directory reads
// from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL store from the provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating store", "DSN_set", cfg.PostgresDSN != "")
	if cfg.PostgresDSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore.NewPostgresStore: migrations applied")
	return &PostgresStore{db: db}, nil
}

// LoadHistory returns the conversation history for a phone number. A missing
// row yields an empty history.
func (s *PostgresStore) LoadHistory(ctx context.Context, phoneNumber string) (models.ConversationHistory, error) {
	history := emptyHistory()

	var historyJSON []byte
	var authState, authClient string
	err := s.db.QueryRowContext(ctx,
		`SELECT history_json, auth_state, auth_client FROM chat_memory WHERE phone_number = $1`,
		phoneNumber).Scan(&historyJSON, &authState, &authClient)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.LoadHistory: no record", "phoneNumber", phoneNumber)
		return history, nil
	}
	if err != nil {
		slog.Error("PostgresStore.LoadHistory failed", "error", err, "phoneNumber", phoneNumber)
		return history, fmt.Errorf("failed to load history for %s: %w", phoneNumber, err)
	}

	if err := json.Unmarshal(historyJSON, &history.Messages); err != nil {
		slog.Error("PostgresStore.LoadHistory: corrupt history JSON, starting fresh", "error", err, "phoneNumber", phoneNumber)
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
func (s *PostgresStore) SaveHistory(ctx context.Context, phoneNumber string, history models.ConversationHistory) error {
	history = trimHistory(history)
	historyJSON, err := json.Marshal(history.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chat_memory (phone_number, history_json, auth_state, auth_client, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone_number)
		DO UPDATE SET
			history_json = EXCLUDED.history_json,
			auth_state = EXCLUDED.auth_state,
			auth_client = EXCLUDED.auth_client,
			updated_at = EXCLUDED.updated_at`,
		phoneNumber, historyJSON, string(history.Auth.State), history.Auth.ClientName, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore.SaveHistory failed", "error", err, "phoneNumber", phoneNumber)
		return fmt.Errorf("failed to save history for %s: %w", phoneNumber, err)
	}
	slog.Debug("PostgresStore.SaveHistory succeeded", "phoneNumber", phoneNumber, "turns", len(history.Messages))
	return nil
}

// ListClientes returns every client in the directory.
func (s *PostgresStore) ListClientes(ctx context.Context) ([]models.Cliente, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, nombre, COALESCE(contrasena, '') FROM clientes ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore.ListClientes query failed", "error", err)
		return nil, fmt.Errorf("failed to query clientes: %w", err)
	}
	defer rows.Close()
	return scanClientes(rows)
}

// FindClientesByName returns clients whose name contains the query,
// case-insensitively.
func (s *PostgresStore) FindClientesByName(ctx context.Context, nameQuery string) ([]models.Cliente, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, nombre, COALESCE(contrasena, '') FROM clientes WHERE nombre ILIKE '%' || $1 || '%' ORDER BY id`,
		nameQuery)
	if err != nil {
		slog.Error("PostgresStore.FindClientesByName query failed", "error", err, "query", nameQuery)
		return nil, fmt.Errorf("failed to search clientes: %w", err)
	}
	defer rows.Close()
	return scanClientes(rows)
}

// PolizasForCliente returns all policies belonging to one client.
func (s *PostgresStore) PolizasForCliente(ctx context.Context, clienteID int64) ([]models.Poliza, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT numero_de_poliza, vigencia_inicio, vigencia_fin, tipo_seguro,
		       suma_asegurada, prima_anual, prima_neta, descripcion, estado
		FROM polizas WHERE id_cliente = $1 ORDER BY id`, clienteID)
	if err != nil {
		slog.Error("PostgresStore.PolizasForCliente query failed", "error", err, "clienteID", clienteID)
		return nil, fmt.Errorf("failed to query polizas: %w", err)
	}
	defer rows.Close()
	return scanPolizas(rows)
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}

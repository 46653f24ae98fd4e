// Package store provides storage backends for the insurance agent.
//
// It persists per-phone-number conversation history (bounded, upserted by
// phone number) and exposes read-only access to the client/policy dataset.
// PostgreSQL and SQLite backends share the same interface; an in-memory
// implementation backs tests.
package store

import (
	"context"
	"strings"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// MaxHistoryMessages bounds every persisted conversation to the most recent
// 40 turns (20 exchanges). Histories are trimmed before writing so persisted
// state never exceeds the bound.
const MaxHistoryMessages = 40

// Store is the persistence contract consumed by the conversation flow and
// the directory query layer.
type Store interface {
	// LoadHistory returns the conversation history for a phone number.
	// Absence is not an error: a fresh identity yields an empty history.
	LoadHistory(ctx context.Context, phoneNumber string) (models.ConversationHistory, error)

	// SaveHistory upserts the history for a phone number, trimming to
	// MaxHistoryMessages before writing.
	SaveHistory(ctx context.Context, phoneNumber string, history models.ConversationHistory) error

	// ListClientes returns every client in the directory.
	ListClientes(ctx context.Context) ([]models.Cliente, error)

	// FindClientesByName returns clients whose name contains the query,
	// case-insensitively.
	FindClientesByName(ctx context.Context, nameQuery string) ([]models.Cliente, error)

	// PolizasForCliente returns all policies belonging to one client.
	PolizasForCliente(ctx context.Context, clienteID int64) ([]models.Poliza, error)

	// Close releases the underlying connection resources.
	Close() error
}

// Opts holds configuration options for store construction.
type Opts struct {
	PostgresDSN string
	SQLiteDSN   string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithPostgresDSN configures a PostgreSQL-backed store.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.PostgresDSN = dsn }
}

// WithSQLiteDSN configures a SQLite-backed store.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.SQLiteDSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" based on its
// shape. Anything that is not recognizably PostgreSQL is treated as a SQLite
// file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// trimHistory enforces the history bound, dropping the oldest turns.
func trimHistory(history models.ConversationHistory) models.ConversationHistory {
	if len(history.Messages) > MaxHistoryMessages {
		history.Messages = history.Messages[len(history.Messages)-MaxHistoryMessages:]
	}
	return history
}

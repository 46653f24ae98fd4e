package store

import (
	"context"
	"strings"
	"sync"

	"github.com/luisrosales852/rodirogRengifoAgente/internal/models"
)

// InMemoryStore is a map-backed Store used by tests and by deployments
// without a configured database.
type InMemoryStore struct {
	mu        sync.RWMutex
	histories map[string]models.ConversationHistory
	clientes  []models.Cliente
	polizas   map[int64][]models.Poliza
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		histories: make(map[string]models.ConversationHistory),
		polizas:   make(map[int64][]models.Poliza),
	}
}

// AddCliente seeds a client record.
func (s *InMemoryStore) AddCliente(c models.Cliente) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientes = append(s.clientes, c)
}

// AddPoliza seeds a policy for a client.
func (s *InMemoryStore) AddPoliza(clienteID int64, p models.Poliza) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polizas[clienteID] = append(s.polizas[clienteID], p)
}

// LoadHistory returns a copy of the stored history, empty on absence.
func (s *InMemoryStore) LoadHistory(ctx context.Context, phoneNumber string) (models.ConversationHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history, ok := s.histories[phoneNumber]
	if !ok {
		return emptyHistory(), nil
	}
	return copyHistory(history), nil
}

// SaveHistory upserts the history, trimming to the bound first.
func (s *InMemoryStore) SaveHistory(ctx context.Context, phoneNumber string, history models.ConversationHistory) error {
	history = trimHistory(copyHistory(history))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[phoneNumber] = history
	return nil
}

// RecordCount returns the number of stored conversation records.
func (s *InMemoryStore) RecordCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories)
}

// ListClientes returns every seeded client.
func (s *InMemoryStore) ListClientes(ctx context.Context) ([]models.Cliente, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Cliente(nil), s.clientes...), nil
}

// FindClientesByName returns clients whose name contains the query,
// case-insensitively.
func (s *InMemoryStore) FindClientesByName(ctx context.Context, nameQuery string) ([]models.Cliente, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(nameQuery)
	var matches []models.Cliente
	for _, c := range s.clientes {
		if strings.Contains(strings.ToLower(c.Nombre), needle) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// PolizasForCliente returns the seeded policies for a client.
func (s *InMemoryStore) PolizasForCliente(ctx context.Context, clienteID int64) ([]models.Poliza, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Poliza(nil), s.polizas[clienteID]...), nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func copyHistory(h models.ConversationHistory) models.ConversationHistory {
	out := models.ConversationHistory{Auth: h.Auth}
	out.Messages = append([]models.Turn(nil), h.Messages...)
	return out
}

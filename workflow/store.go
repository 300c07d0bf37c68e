package workflow

import (
	"context"
	"sync"
)

// Definition is what the store holds for an owner.
type Definition struct {
	Graph     Graph
	UseMemory bool
}

// Store loads and saves workflow graphs by owner id.
// Load returns (nil, nil) when the owner has no workflow.
type Store interface {
	Load(ctx context.Context, ownerID string) (*Definition, error)
	Save(ctx context.Context, ownerID string, g Graph) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]Definition)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, ownerID string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[ownerID]
	if !ok {
		return nil, nil
	}
	return &def, nil
}

// Save validates the graph shape and stores it, keeping the memory flag.
func (s *MemoryStore) Save(_ context.Context, ownerID string, g Graph) error {
	if err := ValidateShape(&g); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.defs[ownerID]
	def.Graph = g
	s.defs[ownerID] = def
	return nil
}

// SetUseMemory toggles memory assembly for an owner.
func (s *MemoryStore) SetUseMemory(ownerID string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := s.defs[ownerID]
	def.UseMemory = enabled
	s.defs[ownerID] = def
}

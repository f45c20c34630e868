package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and single-node development.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

func (s *MemoryStore) LoadState(ctx context.Context, code string) (*SessionState, error) {
	s.mu.RLock()
	blob, ok := s.states[code]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var state SessionState
	if err := json.Unmarshal(blob, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemoryStore) SaveState(ctx context.Context, code string, state *SessionState) error {
	state.SavedAt = time.Now().UTC()
	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.states[code] = blob
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteState(ctx context.Context, code string) error {
	s.mu.Lock()
	delete(s.states, code)
	s.mu.Unlock()
	return nil
}

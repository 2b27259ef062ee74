// Package memory provides in-memory store implementations used by
// tests and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// CurveStateStore is an in-memory implementation of storage.CurveStateStore.
type CurveStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CurveState // keyed by token_id
}

// NewCurveStateStore creates a new in-memory curve state store.
func NewCurveStateStore() *CurveStateStore {
	return &CurveStateStore{
		data: make(map[string]*domain.CurveState),
	}
}

// Upsert inserts or fully replaces the state for state.TokenID.
func (s *CurveStateStore) Upsert(_ context.Context, state *domain.CurveState) error {
	if state == nil || state.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutation
	stateCopy := *state
	s.data[state.TokenID] = &stateCopy
	return nil
}

// Get retrieves the state for a token. Returns ErrNotFound if not exists.
func (s *CurveStateStore) Get(_ context.Context, tokenID string) (*domain.CurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	stateCopy := *state
	return &stateCopy, nil
}

// List retrieves all known curve states, ordered by created_at ASC.
func (s *CurveStateStore) List(_ context.Context) ([]*domain.CurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.CurveState, 0, len(s.data))
	for _, state := range s.data {
		stateCopy := *state
		result = append(result, &stateCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].TokenID < result[j].TokenID
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.CurveStateStore = (*CurveStateStore)(nil)

package memory

import (
	"context"
	"sync"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// GraduationStatusStore is an in-memory implementation of
// storage.GraduationStatusStore.
type GraduationStatusStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GraduationStatus // keyed by token_id
}

// NewGraduationStatusStore creates a new in-memory status store.
func NewGraduationStatusStore() *GraduationStatusStore {
	return &GraduationStatusStore{
		data: make(map[string]*domain.GraduationStatus),
	}
}

// Set inserts or replaces the status for status.TokenID.
func (s *GraduationStatusStore) Set(_ context.Context, status *domain.GraduationStatus) error {
	if status == nil || status.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	statusCopy := *status
	s.data[status.TokenID] = &statusCopy
	return nil
}

// Get retrieves the status for a token. Returns ErrNotFound if the
// token has never entered the graduation flow.
func (s *GraduationStatusStore) Get(_ context.Context, tokenID string) (*domain.GraduationStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	statusCopy := *status
	return &statusCopy, nil
}

var _ storage.GraduationStatusStore = (*GraduationStatusStore)(nil)

package memory

import (
	"context"
	"sync"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// GraduationRecordStore is an in-memory implementation of
// storage.GraduationRecordStore.
type GraduationRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GraduationRecord // keyed by token_id
}

// NewGraduationRecordStore creates a new in-memory record store.
func NewGraduationRecordStore() *GraduationRecordStore {
	return &GraduationRecordStore{
		data: make(map[string]*domain.GraduationRecord),
	}
}

// Insert adds the terminal record. Returns ErrDuplicateKey if the token
// already graduated.
func (s *GraduationRecordStore) Insert(_ context.Context, r *domain.GraduationRecord) error {
	if r == nil || r.TokenID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.TokenID]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	recordCopy.BurnSignatures = append([]string(nil), r.BurnSignatures...)
	s.data[r.TokenID] = &recordCopy
	return nil
}

// GetByTokenID retrieves the record. Returns ErrNotFound if not exists.
func (s *GraduationRecordStore) GetByTokenID(_ context.Context, tokenID string) (*domain.GraduationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[tokenID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	recordCopy.BurnSignatures = append([]string(nil), r.BurnSignatures...)
	return &recordCopy, nil
}

var _ storage.GraduationRecordStore = (*GraduationRecordStore)(nil)

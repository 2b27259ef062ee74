package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle // keyed by composite key
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]*domain.Candle),
	}
}

// candleKey generates a unique key for a candle.
func candleKey(tokenID string, tf domain.Timeframe, periodStart int64) string {
	return fmt.Sprintf("%s|%s|%d", tokenID, tf, periodStart)
}

// Upsert inserts or replaces the candle for its key.
func (s *CandleStore) Upsert(_ context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == "" || !domain.ValidTimeframe(c.Timeframe) {
		return storage.ErrInvalidInput
	}

	key := candleKey(c.TokenID, c.Timeframe, c.PeriodStart)

	s.mu.Lock()
	defer s.mu.Unlock()

	candleCopy := *c
	s.data[key] = &candleCopy
	return nil
}

// InsertIfAbsent inserts the candle only when its key does not exist.
// Existing candles are left untouched.
func (s *CandleStore) InsertIfAbsent(_ context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == "" || !domain.ValidTimeframe(c.Timeframe) {
		return storage.ErrInvalidInput
	}

	key := candleKey(c.TokenID, c.Timeframe, c.PeriodStart)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return nil
	}

	candleCopy := *c
	s.data[key] = &candleCopy
	return nil
}

// Get retrieves one candle by key. Returns ErrNotFound if not exists.
func (s *CandleStore) Get(_ context.Context, tokenID string, tf domain.Timeframe, periodStart int64) (*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[candleKey(tokenID, tf, periodStart)]
	if !exists {
		return nil, storage.ErrNotFound
	}

	candleCopy := *c
	return &candleCopy, nil
}

// GetRange retrieves candles for a token and timeframe with
// period_start within [start, end] (inclusive), ordered ASC.
func (s *CandleStore) GetRange(_ context.Context, tokenID string, tf domain.Timeframe, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Candle
	for _, c := range s.data {
		if c.TokenID == tokenID && c.Timeframe == tf && c.PeriodStart >= start && c.PeriodStart <= end {
			candleCopy := *c
			result = append(result, &candleCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart < result[j].PeriodStart
	})

	return result, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)

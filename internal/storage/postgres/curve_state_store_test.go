package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

func TestCurveStateStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCurveStateStore(pool)

	state := &domain.CurveState{
		TokenID:         "Mint1111111111111111111111111111111111111111",
		CurrentPrice:    69000,
		TotalSupply:     0,
		MaxSupply:       1_000_000_000 * domain.LamportsPerToken,
		TreasuryBalance: 0,
		TotalVolume:     0,
		CreatedAt:       1700000000000,
		UpdatedAt:       1700000000000,
	}

	err := store.Upsert(ctx, state)
	require.NoError(t, err)

	got, err := store.Get(ctx, state.TokenID)
	require.NoError(t, err)

	assert.Equal(t, state.TokenID, got.TokenID)
	assert.InDelta(t, 69000, got.CurrentPrice, 0.0001)
	assert.False(t, got.IsGraduated)
	assert.Equal(t, state.CreatedAt, got.CreatedAt)
}

func TestCurveStateStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCurveStateStore(pool)

	state := &domain.CurveState{
		TokenID:      "Mint1111111111111111111111111111111111111111",
		CurrentPrice: 69000,
		CreatedAt:    1700000000000,
		UpdatedAt:    1700000000000,
	}
	require.NoError(t, store.Upsert(ctx, state))

	state.CurrentPrice = 72000
	state.TotalSupply = 5000 * domain.LamportsPerToken
	state.TreasuryBalance = 10 * domain.LamportsPerSOL
	state.IsGraduated = true
	state.UpdatedAt = 1700000001000
	require.NoError(t, store.Upsert(ctx, state))

	got, err := store.Get(ctx, state.TokenID)
	require.NoError(t, err)

	assert.InDelta(t, 72000, got.CurrentPrice, 0.0001)
	assert.InDelta(t, 10*domain.LamportsPerSOL, got.TreasuryBalance, 0.0001)
	assert.True(t, got.IsGraduated)
	assert.Equal(t, int64(1700000001000), got.UpdatedAt)
	// created_at is immutable across upserts
	assert.Equal(t, int64(1700000000000), got.CreatedAt)
}

func TestCurveStateStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCurveStateStore(pool)

	_, err := store.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCurveStateStore_ListOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewCurveStateStore(pool)

	for i, created := range []int64{300, 100, 200} {
		state := &domain.CurveState{
			TokenID:      string(rune('A'+i)) + "Mint111111111111111111111111111111111111111",
			CurrentPrice: 69000,
			CreatedAt:    created,
			UpdatedAt:    created,
		}
		require.NoError(t, store.Upsert(ctx, state))
	}

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].CreatedAt, all[i].CreatedAt)
	}
}

package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-engine/internal/curve"
	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
	"curve-engine/internal/storage/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, _ := newTestServiceWithStores(t)
	return svc
}

type testStores struct {
	states *memory.CurveStateStore
	trades *memory.TradeStore
}

func newTestServiceWithStores(t *testing.T) (*Service, *testStores) {
	t.Helper()
	fees := domain.DefaultFeeSchedule()
	pricer := curve.NewPricer(domain.DefaultCurveParams(), fees)
	stores := &testStores{
		states: memory.NewCurveStateStore(),
		trades: memory.NewTradeStore(),
	}
	svc := New(
		stores.states,
		stores.trades,
		pricer,
		fees,
		WithClock(func() int64 { return 1700000000000 }),
	)
	return svc, stores
}

func applyBuy(t *testing.T, svc *Service, tokenID, sig string, solIn float64) *ApplyResult {
	t.Helper()

	res, err := svc.ApplyTrade(context.Background(), &ApplyInput{
		Signature: sig,
		TokenID:   tokenID,
		Trader:    "trader1",
		Direction: domain.DirectionBuy,
		Amount:    solIn,
		Slot:      100,
		BlockTime: 1700000000000,
	})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	st, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)
	assert.Equal(t, "mint1", st.TokenID)
	assert.Equal(t, 69000.0, st.CurrentPrice)
	assert.Equal(t, 0.0, st.TotalSupply)
	assert.False(t, st.IsGraduated)

	// Re-registering returns the stored state untouched.
	applyBuy(t, svc, "mint1", "sig1", 10*domain.LamportsPerSOL)

	again, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)
	assert.Greater(t, again.TotalSupply, 0.0)
}

func TestApplyTrade_Buy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	res := applyBuy(t, svc, "mint1", "sig1", 10*domain.LamportsPerSOL)

	assert.False(t, res.Replayed)
	assert.False(t, res.Graduated)
	assert.Equal(t, "sig1", res.Trade.Signature)
	assert.Equal(t, domain.DirectionBuy, res.Trade.Direction)
	assert.Greater(t, res.State.TotalSupply, 0.0)
	assert.Greater(t, res.State.CurrentPrice, 69000.0)

	// Treasury holds the input net of fees.
	solIn := 10.0 * domain.LamportsPerSOL
	assert.InDelta(t, solIn-res.Trade.PlatformFee-res.Trade.CreatorFee,
		res.State.TreasuryBalance, 1)
	assert.Equal(t, solIn, res.State.TotalVolume)
}

func TestApplyTrade_Replay(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	first := applyBuy(t, svc, "mint1", "sig1", 5*domain.LamportsPerSOL)

	// Same signature again, even with a different amount.
	replay, err := svc.ApplyTrade(ctx, &ApplyInput{
		Signature: "sig1",
		TokenID:   "mint1",
		Trader:    "trader1",
		Direction: domain.DirectionBuy,
		Amount:    50 * domain.LamportsPerSOL,
	})
	require.NoError(t, err)

	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Trade.SolAmount, replay.Trade.SolAmount)
	assert.Equal(t, first.State.TotalSupply, replay.State.TotalSupply)
}

func TestApplyTrade_UnknownToken(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ApplyTrade(context.Background(), &ApplyInput{
		Signature: "sig1",
		TokenID:   "never-registered",
		Direction: domain.DirectionBuy,
		Amount:    domain.LamportsPerSOL,
	})
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestApplyTrade_SellReturnsTreasury(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	buy := applyBuy(t, svc, "mint1", "sig-buy", 10*domain.LamportsPerSOL)

	res, err := svc.ApplyTrade(ctx, &ApplyInput{
		Signature: "sig-sell",
		TokenID:   "mint1",
		Trader:    "trader1",
		Direction: domain.DirectionSell,
		Amount:    buy.Trade.TokenAmount,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.DirectionSell, res.Trade.Direction)
	assert.Equal(t, 0.0, res.State.TotalSupply)
	// Round trip drains the treasury back to zero within float noise.
	assert.InDelta(t, 0, res.State.TreasuryBalance, 1e3)
}

func TestApplyTrade_GraduationFlipsOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	// 0.5%+0.5% fees mean ~505 SOL nets past the 500 SOL threshold.
	graduations := 0
	for i := 0; i < 6; i++ {
		sig := fmt.Sprintf("sig%d", i)
		res := applyBuy(t, svc, "mint1", sig, 101*domain.LamportsPerSOL)
		if res.Graduated {
			graduations++
			assert.True(t, res.State.IsGraduated)
		}
	}
	assert.Equal(t, 1, graduations, "threshold crossing must report exactly once")

	// The frozen curve rejects further trades.
	_, err = svc.Quote(ctx, "mint1", domain.DirectionBuy, domain.LamportsPerSOL)
	assert.ErrorIs(t, err, ErrAlreadyGraduated)

	_, err = svc.ApplyTrade(ctx, &ApplyInput{
		Signature: "sig-late",
		TokenID:   "mint1",
		Direction: domain.DirectionBuy,
		Amount:    domain.LamportsPerSOL,
	})
	assert.ErrorIs(t, err, ErrAlreadyGraduated)
}

func TestApplyTrade_ReplayAfterGraduation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	var lastSig string
	for i := 0; i < 6; i++ {
		lastSig = fmt.Sprintf("sig%d", i)
		res := applyBuy(t, svc, "mint1", lastSig, 101*domain.LamportsPerSOL)
		if res.Graduated {
			break
		}
	}

	// Replaying the graduating trade must return the stored record, not
	// ErrAlreadyGraduated.
	res, err := svc.ApplyTrade(ctx, &ApplyInput{
		Signature: lastSig,
		TokenID:   "mint1",
		Direction: domain.DirectionBuy,
		Amount:    101 * domain.LamportsPerSOL,
	})
	require.NoError(t, err)
	assert.True(t, res.Replayed)
}

func TestApplyTrade_ExceedsMaxSupply(t *testing.T) {
	svc, stores := newTestServiceWithStores(t)
	ctx := context.Background()

	st, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	// Shrink the ceiling so one moderate buy crosses it. The curve is
	// nearly flat this low, so 2 SOL buys ~28k tokens.
	st.MaxSupply = 20_000 * domain.LamportsPerToken
	require.NoError(t, stores.states.Upsert(ctx, st))

	_, err = svc.ApplyTrade(ctx, &ApplyInput{
		Signature: "sig1",
		TokenID:   "mint1",
		Direction: domain.DirectionBuy,
		Amount:    2 * domain.LamportsPerSOL,
	})
	assert.ErrorIs(t, err, ErrExceedsMaxSupply)

	// Nothing was persisted for the rejected trade.
	_, err = stores.trades.GetBySignature(ctx, "sig1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApplyTrade_ConcurrentSameSignature(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	// Expected settlement of the single winning trade.
	q, err := svc.Quote(ctx, "mint1", domain.DirectionBuy, domain.LamportsPerSOL)
	require.NoError(t, err)

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ApplyTrade(ctx, &ApplyInput{
				Signature: "sig-race",
				TokenID:   "mint1",
				Direction: domain.DirectionBuy,
				Amount:    domain.LamportsPerSOL,
			})
			if err != nil {
				t.Errorf("ApplyTrade: %v", err)
				return
			}
			if !res.Replayed {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied, "exactly one goroutine applies the trade")

	st, err := svc.Get(ctx, "mint1")
	require.NoError(t, err)
	assert.Equal(t, q.NewSupply, st.TotalSupply)
}

func TestApplyTrade_ConcurrentDistinctSignatures(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	// Each worker settles against the supply the previous one left
	// behind; no trade's issuance may be erased by a later write.
	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	tokensOut := 0.0
	netIn := 0.0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.ApplyTrade(ctx, &ApplyInput{
				Signature: fmt.Sprintf("sig-%d", i),
				TokenID:   "mint1",
				Trader:    "trader1",
				Direction: domain.DirectionBuy,
				Amount:    domain.LamportsPerSOL,
			})
			if err != nil {
				t.Errorf("ApplyTrade: %v", err)
				return
			}
			mu.Lock()
			tokensOut += res.Trade.TokenAmount
			netIn += res.Trade.SolAmount - res.Trade.PlatformFee - res.Trade.CreatorFee
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	st, err := svc.Get(ctx, "mint1")
	require.NoError(t, err)
	assert.InDelta(t, tokensOut, st.TotalSupply, 1,
		"supply must equal the sum of issued tokens")
	assert.InDelta(t, netIn, st.TreasuryBalance, 1,
		"treasury must equal the sum of net inflows")
	assert.Equal(t, float64(workers)*domain.LamportsPerSOL, st.TotalVolume)
}

// failingStateStore fails Upsert a fixed number of times, then recovers.
type failingStateStore struct {
	storage.CurveStateStore
	failures int
}

func (s *failingStateStore) Upsert(ctx context.Context, st *domain.CurveState) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.CurveStateStore.Upsert(ctx, st)
}

func TestApplyTrade_StatePersistFailureIsRetryable(t *testing.T) {
	fees := domain.DefaultFeeSchedule()
	pricer := curve.NewPricer(domain.DefaultCurveParams(), fees)
	trades := memory.NewTradeStore()
	flaky := &failingStateStore{CurveStateStore: memory.NewCurveStateStore()}
	svc := New(flaky, trades, pricer, fees,
		WithClock(func() int64 { return 1700000000000 }))
	ctx := context.Background()

	_, err := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, err)

	in := &ApplyInput{
		Signature: "sig1",
		TokenID:   "mint1",
		Trader:    "trader1",
		Direction: domain.DirectionBuy,
		Amount:    10 * domain.LamportsPerSOL,
	}

	flaky.failures = 1
	_, err = svc.ApplyTrade(ctx, in)
	require.Error(t, err)

	// The failed attempt must not leave a trade behind, or the retry
	// would replay it against a state that never absorbed it.
	_, err = trades.GetBySignature(ctx, "sig1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	res, err := svc.ApplyTrade(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Greater(t, res.State.TotalSupply, 0.0)
	assert.Greater(t, res.State.TreasuryBalance, 0.0)
}

func TestApplyTrade_InvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.ApplyTrade(ctx, nil)
	assert.Error(t, err)

	_, err = svc.ApplyTrade(ctx, &ApplyInput{Signature: "sig"})
	assert.Error(t, err)

	// Zero amounts are rejected by the pricer before any write.
	_, regErr := svc.Register(ctx, "mint1", "creator1", 0)
	require.NoError(t, regErr)
	_, err = svc.ApplyTrade(ctx, &ApplyInput{
		Signature: "sig-zero",
		TokenID:   "mint1",
		Direction: domain.DirectionBuy,
	})
	assert.ErrorIs(t, err, curve.ErrInvalidAmount)
}

func TestGet_UnknownToken(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnknownToken))
}

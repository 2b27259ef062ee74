// Package candles aggregates trades into OHLCV candles across all
// supported timeframes and serves chart queries.
package candles

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// ErrInvalidTimeframe is returned for a timeframe outside the supported set.
var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Chart is a TradingView-style column layout: parallel arrays aligned
// by index, one entry per candle, ascending by period start.
type Chart struct {
	T []int64   `json:"t"` // period starts, unix ms
	O []float64 `json:"o"`
	H []float64 `json:"h"`
	L []float64 `json:"l"`
	C []float64 `json:"c"`
	V []float64 `json:"v"`
}

// Len returns the number of candles in the chart.
func (c *Chart) Len() int { return len(c.T) }

// Aggregator maintains live candles in the candle store and optionally
// mirrors closed candles into a long-range archive. Safe for concurrent
// use; updates for the same token are serialized.
type Aggregator struct {
	candles storage.CandleStore
	archive storage.CandleArchiveStore // optional
	logger  *log.Logger

	locks sync.Map // tokenID -> *sync.Mutex
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithArchive attaches a long-range archive for closed candles.
func WithArchive(archive storage.CandleArchiveStore) Option {
	return func(a *Aggregator) {
		a.archive = archive
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAggregator creates an aggregator on top of the given candle store.
func NewAggregator(candles storage.CandleStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		candles: candles,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnTrade folds one settled trade into the live candle of every
// timeframe. Buckets are created lazily on the first trade of a period.
func (a *Aggregator) OnTrade(ctx context.Context, trade *domain.Trade) error {
	if trade == nil {
		return fmt.Errorf("on trade: %w", storage.ErrInvalidInput)
	}

	mu := a.lockFor(trade.TokenID)
	mu.Lock()
	defer mu.Unlock()

	for _, tf := range domain.Timeframes {
		periodStart := tf.BucketStart(trade.BlockTime)

		c, err := a.candles.Get(ctx, trade.TokenID, tf, periodStart)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c = domain.NewCandle(trade.TokenID, tf, periodStart, trade.Price, trade.SolAmount)
		case err != nil:
			return fmt.Errorf("get candle %s/%s: %w", trade.TokenID, tf, err)
		default:
			c.Merge(trade.Price, trade.SolAmount)
		}

		if err := a.candles.Upsert(ctx, c); err != nil {
			return fmt.Errorf("upsert candle %s/%s: %w", trade.TokenID, tf, err)
		}
	}
	return nil
}

// Backfill rebuilds candles for a token from trade history within
// [start, end]. Existing buckets are never overwritten, so live
// aggregation always wins over a concurrent backfill.
func (a *Aggregator) Backfill(ctx context.Context, trades storage.TradeStore, tokenID string, start, end int64) (int, error) {
	history, err := trades.GetByTimeRange(ctx, tokenID, start, end)
	if err != nil {
		return 0, fmt.Errorf("load trades: %w", err)
	}
	if len(history) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, tf := range domain.Timeframes {
		// Trades arrive block_time ASC, so open/close fall out of
		// iteration order.
		built := make(map[int64]*domain.Candle)
		var order []int64
		for _, tr := range history {
			periodStart := tf.BucketStart(tr.BlockTime)
			if c, ok := built[periodStart]; ok {
				c.Merge(tr.Price, tr.SolAmount)
				continue
			}
			built[periodStart] = domain.NewCandle(tokenID, tf, periodStart, tr.Price, tr.SolAmount)
			order = append(order, periodStart)
		}

		for _, periodStart := range order {
			if err := a.candles.InsertIfAbsent(ctx, built[periodStart]); err != nil {
				return inserted, fmt.Errorf("backfill candle %s/%s: %w", tokenID, tf, err)
			}
			inserted++
		}
	}

	a.logger.Printf("[candles] backfilled %d buckets for %s from %d trades", inserted, tokenID, len(history))
	return inserted, nil
}

// Query returns aligned OHLCV arrays for a token and timeframe within
// [start, end]. When an archive is attached its rows fill in periods
// missing from the live store; live buckets always win.
func (a *Aggregator) Query(ctx context.Context, tokenID string, tf domain.Timeframe, start, end int64) (*Chart, error) {
	if !domain.ValidTimeframe(tf) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeframe, tf)
	}

	live, err := a.candles.GetRange(ctx, tokenID, tf, start, end)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}

	merged := make(map[int64]*domain.Candle, len(live))
	for _, c := range live {
		merged[c.PeriodStart] = c
	}

	if a.archive != nil {
		archived, err := a.archive.GetRange(ctx, tokenID, tf, start, end)
		if err != nil {
			return nil, fmt.Errorf("query archive: %w", err)
		}
		for _, c := range archived {
			if _, ok := merged[c.PeriodStart]; !ok {
				merged[c.PeriodStart] = c
			}
		}
	}

	keys := make([]int64, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	chart := &Chart{
		T: make([]int64, 0, len(keys)),
		O: make([]float64, 0, len(keys)),
		H: make([]float64, 0, len(keys)),
		L: make([]float64, 0, len(keys)),
		C: make([]float64, 0, len(keys)),
		V: make([]float64, 0, len(keys)),
	}
	for _, k := range keys {
		c := merged[k]
		chart.T = append(chart.T, c.PeriodStart)
		chart.O = append(chart.O, c.Open)
		chart.H = append(chart.H, c.High)
		chart.L = append(chart.L, c.Low)
		chart.C = append(chart.C, c.Close)
		chart.V = append(chart.V, c.Volume)
	}
	return chart, nil
}

// Archive copies candles whose period fully closed before the cutoff
// into the long-range archive. The live store keeps its rows; the
// archive backend deduplicates re-archived keys. Returns the number of
// candles shipped.
func (a *Aggregator) Archive(ctx context.Context, tokenID string, cutoff int64) (int, error) {
	if a.archive == nil {
		return 0, nil
	}

	var batch []*domain.Candle
	for _, tf := range domain.Timeframes {
		width := tf.Duration().Milliseconds()
		// A candle starting at s is closed once s+width <= cutoff.
		closed, err := a.candles.GetRange(ctx, tokenID, tf, 0, cutoff-width)
		if err != nil {
			return 0, fmt.Errorf("collect closed candles %s/%s: %w", tokenID, tf, err)
		}
		batch = append(batch, closed...)
	}

	if len(batch) == 0 {
		return 0, nil
	}
	if err := a.archive.ArchiveBulk(ctx, batch); err != nil {
		return 0, fmt.Errorf("archive candles for %s: %w", tokenID, err)
	}

	a.logger.Printf("[candles] archived %d closed candles for %s", len(batch), tokenID)
	return len(batch), nil
}

func (a *Aggregator) lockFor(tokenID string) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(tokenID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

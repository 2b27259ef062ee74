package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// CandleStore implements storage.CandleStore using PostgreSQL.
type CandleStore struct {
	pool *Pool
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(pool *Pool) *CandleStore {
	return &CandleStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

const candleColumns = `
	token_id, timeframe, period_start,
	open, high, low, close, volume, trade_count
`

// Upsert inserts or replaces the candle for its key.
func (s *CandleStore) Upsert(ctx context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == "" || !domain.ValidTimeframe(c.Timeframe) {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO candles (` + candleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_id, timeframe, period_start) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			trade_count = EXCLUDED.trade_count
	`

	_, err := s.pool.Exec(ctx, query,
		c.TokenID, string(c.Timeframe), c.PeriodStart,
		c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades,
	)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// InsertIfAbsent inserts the candle only when its key does not exist.
// Existing candles are left untouched.
func (s *CandleStore) InsertIfAbsent(ctx context.Context, c *domain.Candle) error {
	if c == nil || c.TokenID == "" || !domain.ValidTimeframe(c.Timeframe) {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO candles (` + candleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_id, timeframe, period_start) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		c.TokenID, string(c.Timeframe), c.PeriodStart,
		c.Open, c.High, c.Low, c.Close, c.Volume, c.Trades,
	)
	if err != nil {
		return fmt.Errorf("insert candle if absent: %w", err)
	}
	return nil
}

// Get retrieves one candle by key. Returns ErrNotFound if not exists.
func (s *CandleStore) Get(ctx context.Context, tokenID string, tf domain.Timeframe, periodStart int64) (*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE token_id = $1 AND timeframe = $2 AND period_start = $3
	`

	row := s.pool.QueryRow(ctx, query, tokenID, string(tf), periodStart)
	c, err := scanCandle(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get candle: %w", err)
	}
	return c, nil
}

// GetRange retrieves candles for a token and timeframe with
// period_start within [start, end] (inclusive), ordered ASC.
func (s *CandleStore) GetRange(ctx context.Context, tokenID string, tf domain.Timeframe, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT ` + candleColumns + `
		FROM candles
		WHERE token_id = $1 AND timeframe = $2
		  AND period_start >= $3 AND period_start <= $4
		ORDER BY period_start ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, string(tf), start, end)
	if err != nil {
		return nil, fmt.Errorf("get candle range: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		c, err := scanCandle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}

// scanCandle scans a single row into a Candle.
func scanCandle(row pgx.Row) (*domain.Candle, error) {
	var c domain.Candle
	var tfStr string

	err := row.Scan(
		&c.TokenID,
		&tfStr,
		&c.PeriodStart,
		&c.Open,
		&c.High,
		&c.Low,
		&c.Close,
		&c.Volume,
		&c.Trades,
	)
	if err != nil {
		return nil, err
	}

	c.Timeframe = domain.Timeframe(tfStr)
	return &c, nil
}

package clickhouse

import (
	"context"
	"fmt"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// CandleArchiveStore implements storage.CandleArchiveStore using
// ClickHouse. Closed candles are appended in batches; the
// ReplacingMergeTree engine deduplicates re-archived keys.
type CandleArchiveStore struct {
	conn *Conn
}

// NewCandleArchiveStore creates a new CandleArchiveStore.
func NewCandleArchiveStore(conn *Conn) *CandleArchiveStore {
	return &CandleArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleArchiveStore = (*CandleArchiveStore)(nil)

// ArchiveBulk appends a batch of closed candles.
func (s *CandleArchiveStore) ArchiveBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candle_archive (
			token_id, timeframe, period_start,
			open, high, low, close, volume, trade_count
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.TokenID, string(c.Timeframe), uint64(c.PeriodStart),
			c.Open, c.High, c.Low, c.Close, c.Volume, uint32(c.Trades),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves archived candles for a token and timeframe with
// period_start within [start, end] (inclusive), ordered ASC.
func (s *CandleArchiveStore) GetRange(ctx context.Context, tokenID string, tf domain.Timeframe, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT token_id, timeframe, period_start,
		       open, high, low, close, volume, trade_count
		FROM candle_archive FINAL
		WHERE token_id = ? AND timeframe = ?
		  AND period_start >= ? AND period_start <= ?
		ORDER BY period_start ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID, string(tf), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query candle archive: %w", err)
	}
	defer rows.Close()

	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		var tfStr string
		var periodStart uint64
		var tradeCount uint32

		err := rows.Scan(
			&c.TokenID, &tfStr, &periodStart,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &tradeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle archive row: %w", err)
		}

		c.Timeframe = domain.Timeframe(tfStr)
		c.PeriodStart = int64(periodStart)
		c.Trades = int(tradeCount)
		candles = append(candles, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle archive rows: %w", err)
	}

	return candles, nil
}

package storage

import (
	"context"

	"curve-engine/internal/domain"
)

// CurveStateStore provides access to curve_states storage.
type CurveStateStore interface {
	// Upsert inserts or fully replaces the state for state.TokenID.
	Upsert(ctx context.Context, state *domain.CurveState) error

	// Get retrieves the state for a token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, tokenID string) (*domain.CurveState, error)

	// List retrieves all known curve states, ordered by created_at ASC.
	List(ctx context.Context) ([]*domain.CurveState, error)
}

// TradeStore provides access to trades storage. Trades are keyed by
// transaction signature; the unique signature is the idempotency
// barrier for replayed chain events.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetBySignature retrieves a trade by signature. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Trade, error)

	// GetByToken retrieves the most recent trades for a token,
	// ordered by block_time DESC. limit <= 0 means no limit.
	GetByToken(ctx context.Context, tokenID string, limit int) ([]*domain.Trade, error)

	// GetByTimeRange retrieves trades for a token within [start, end]
	// (inclusive, unix ms), ordered by block_time ASC.
	GetByTimeRange(ctx context.Context, tokenID string, start, end int64) ([]*domain.Trade, error)

	// Delete removes a trade by signature. Deleting a missing signature
	// is a no-op. Only the apply path uses this, to withdraw a trade
	// whose state mutation failed to persist.
	Delete(ctx context.Context, signature string) error
}

// CandleStore provides access to candles storage.
type CandleStore interface {
	// Upsert inserts or replaces the candle for its
	// (token_id, timeframe, period_start) key.
	Upsert(ctx context.Context, c *domain.Candle) error

	// InsertIfAbsent inserts the candle only when its key does not exist
	// yet. Existing candles are left untouched; no error is returned for
	// the skip. Used by backfill so live buckets are never overwritten.
	InsertIfAbsent(ctx context.Context, c *domain.Candle) error

	// Get retrieves one candle by key. Returns ErrNotFound if not exists.
	Get(ctx context.Context, tokenID string, tf domain.Timeframe, periodStart int64) (*domain.Candle, error)

	// GetRange retrieves candles for a token and timeframe with
	// period_start within [start, end] (inclusive), ordered ASC.
	GetRange(ctx context.Context, tokenID string, tf domain.Timeframe, start, end int64) ([]*domain.Candle, error)
}

// CandleArchiveStore provides bulk archival of closed candles for
// long-range chart queries. Archival is best effort; the live
// CandleStore stays authoritative for recent buckets.
type CandleArchiveStore interface {
	// ArchiveBulk appends a batch of closed candles. Re-archived keys
	// are deduplicated by the backend.
	ArchiveBulk(ctx context.Context, candles []*domain.Candle) error

	// GetRange retrieves archived candles for a token and timeframe
	// with period_start within [start, end] (inclusive), ordered ASC.
	GetRange(ctx context.Context, tokenID string, tf domain.Timeframe, start, end int64) ([]*domain.Candle, error)
}

// GraduationStatusStore provides access to graduation_statuses storage.
type GraduationStatusStore interface {
	// Set inserts or replaces the status for status.TokenID.
	Set(ctx context.Context, status *domain.GraduationStatus) error

	// Get retrieves the status for a token. Returns ErrNotFound if the
	// token has never entered the graduation flow.
	Get(ctx context.Context, tokenID string) (*domain.GraduationStatus, error)
}

// GraduationRecordStore provides access to graduation_records storage.
// Records are written exactly once per token.
type GraduationRecordStore interface {
	// Insert adds the terminal record. Returns ErrDuplicateKey if the
	// token already graduated.
	Insert(ctx context.Context, r *domain.GraduationRecord) error

	// GetByTokenID retrieves the record. Returns ErrNotFound if not exists.
	GetByTokenID(ctx context.Context, tokenID string) (*domain.GraduationRecord, error)
}

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL. The unique
// constraint on signature is the idempotency barrier for replayed
// chain events.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	signature, token_id, trader, direction,
	sol_amount, token_amount, price, platform_fee, creator_fee,
	new_price, new_supply, graduation_progress, slot, block_time
`

// Insert adds a new trade. Returns ErrDuplicateKey if signature exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.Signature == "" || t.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.pool.Exec(ctx, query,
		t.Signature,
		t.TokenID,
		t.Trader,
		string(t.Direction),
		t.SolAmount,
		t.TokenAmount,
		t.Price,
		t.PlatformFee,
		t.CreatorFee,
		t.NewPrice,
		t.NewSupply,
		t.GraduationProgress,
		t.Slot,
		t.BlockTime,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetBySignature retrieves a trade by signature. Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by signature: %w", err)
	}
	return t, nil
}

// GetByToken retrieves the most recent trades for a token, ordered by
// block_time DESC. limit <= 0 means no limit.
func (s *TradeStore) GetByToken(ctx context.Context, tokenID string, limit int) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1
		ORDER BY block_time DESC, slot DESC
	`
	args := []any{tokenID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTimeRange retrieves trades for a token within [start, end]
// (inclusive), ordered by block_time ASC.
func (s *TradeStore) GetByTimeRange(ctx context.Context, tokenID string, start, end int64) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE token_id = $1 AND block_time >= $2 AND block_time <= $3
		ORDER BY block_time ASC, slot ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// Delete removes a trade by signature. Missing signatures are a no-op.
func (s *TradeStore) Delete(ctx context.Context, signature string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE signature = $1`, signature)
	if err != nil {
		return fmt.Errorf("delete trade: %w", err)
	}
	return nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var directionStr string

	err := row.Scan(
		&t.Signature,
		&t.TokenID,
		&t.Trader,
		&directionStr,
		&t.SolAmount,
		&t.TokenAmount,
		&t.Price,
		&t.PlatformFee,
		&t.CreatorFee,
		&t.NewPrice,
		&t.NewSupply,
		&t.GraduationProgress,
		&t.Slot,
		&t.BlockTime,
	)
	if err != nil {
		return nil, err
	}

	t.Direction = domain.TradeDirection(directionStr)
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}

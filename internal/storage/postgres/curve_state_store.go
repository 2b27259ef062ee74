package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// CurveStateStore implements storage.CurveStateStore using PostgreSQL.
type CurveStateStore struct {
	pool *Pool
}

// NewCurveStateStore creates a new CurveStateStore.
func NewCurveStateStore(pool *Pool) *CurveStateStore {
	return &CurveStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveStateStore = (*CurveStateStore)(nil)

// Upsert inserts or fully replaces the state for state.TokenID.
func (s *CurveStateStore) Upsert(ctx context.Context, state *domain.CurveState) error {
	if state == nil || state.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO curve_states (
			token_id, creator, current_price, total_supply, max_supply,
			treasury_balance, total_volume, is_graduated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (token_id) DO UPDATE SET
			creator = EXCLUDED.creator,
			current_price = EXCLUDED.current_price,
			total_supply = EXCLUDED.total_supply,
			max_supply = EXCLUDED.max_supply,
			treasury_balance = EXCLUDED.treasury_balance,
			total_volume = EXCLUDED.total_volume,
			is_graduated = EXCLUDED.is_graduated,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		state.TokenID,
		state.Creator,
		state.CurrentPrice,
		state.TotalSupply,
		state.MaxSupply,
		state.TreasuryBalance,
		state.TotalVolume,
		state.IsGraduated,
		state.CreatedAt,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert curve state: %w", err)
	}
	return nil
}

// Get retrieves the state for a token. Returns ErrNotFound if not exists.
func (s *CurveStateStore) Get(ctx context.Context, tokenID string) (*domain.CurveState, error) {
	query := `
		SELECT token_id, creator, current_price, total_supply, max_supply,
		       treasury_balance, total_volume, is_graduated, created_at, updated_at
		FROM curve_states
		WHERE token_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tokenID)
	state, err := scanCurveState(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get curve state: %w", err)
	}
	return state, nil
}

// List retrieves all known curve states, ordered by created_at ASC.
func (s *CurveStateStore) List(ctx context.Context) ([]*domain.CurveState, error) {
	query := `
		SELECT token_id, creator, current_price, total_supply, max_supply,
		       treasury_balance, total_volume, is_graduated, created_at, updated_at
		FROM curve_states
		ORDER BY created_at ASC, token_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list curve states: %w", err)
	}
	defer rows.Close()

	var states []*domain.CurveState
	for rows.Next() {
		state, err := scanCurveState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan curve state row: %w", err)
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate curve state rows: %w", err)
	}

	return states, nil
}

// scanCurveState scans a single row into a CurveState.
func scanCurveState(row pgx.Row) (*domain.CurveState, error) {
	var state domain.CurveState

	err := row.Scan(
		&state.TokenID,
		&state.Creator,
		&state.CurrentPrice,
		&state.TotalSupply,
		&state.MaxSupply,
		&state.TreasuryBalance,
		&state.TotalVolume,
		&state.IsGraduated,
		&state.CreatedAt,
		&state.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

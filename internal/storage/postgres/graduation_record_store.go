package postgres

import (
	"context"
	"fmt"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// GraduationRecordStore implements storage.GraduationRecordStore using
// PostgreSQL.
type GraduationRecordStore struct {
	pool *Pool
}

// NewGraduationRecordStore creates a new GraduationRecordStore.
func NewGraduationRecordStore(pool *Pool) *GraduationRecordStore {
	return &GraduationRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GraduationRecordStore = (*GraduationRecordStore)(nil)

// Insert adds the terminal record. Returns ErrDuplicateKey if the token
// already graduated.
func (s *GraduationRecordStore) Insert(ctx context.Context, r *domain.GraduationRecord) error {
	if r == nil || r.TokenID == "" {
		return storage.ErrInvalidInput
	}

	burnSigs := r.BurnSignatures
	if burnSigs == nil {
		burnSigs = []string{}
	}
	transferSigs := r.TransferSignatures
	if transferSigs == nil {
		transferSigs = []string{}
	}

	query := `
		INSERT INTO graduation_records (
			token_id, final_price, final_supply, final_market_cap,
			liquidity_migrated, platform_allocation, creator_allocation,
			tokens_in_pool, pool_id, lp_mint, transfer_signatures,
			burn_signatures, graduated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		r.TokenID,
		r.FinalPrice,
		r.FinalSupply,
		r.FinalMarketCap,
		r.LiquidityMigrated,
		r.PlatformAllocation,
		r.CreatorAllocation,
		r.TokensInPool,
		r.PoolID,
		r.LPMint,
		transferSigs,
		burnSigs,
		r.GraduatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert graduation record: %w", err)
	}
	return nil
}

// GetByTokenID retrieves the record. Returns ErrNotFound if not exists.
func (s *GraduationRecordStore) GetByTokenID(ctx context.Context, tokenID string) (*domain.GraduationRecord, error) {
	query := `
		SELECT token_id, final_price, final_supply, final_market_cap,
		       liquidity_migrated, platform_allocation, creator_allocation,
		       tokens_in_pool, pool_id, lp_mint, transfer_signatures,
		       burn_signatures, graduated_at
		FROM graduation_records
		WHERE token_id = $1
	`

	var r domain.GraduationRecord

	err := s.pool.QueryRow(ctx, query, tokenID).Scan(
		&r.TokenID,
		&r.FinalPrice,
		&r.FinalSupply,
		&r.FinalMarketCap,
		&r.LiquidityMigrated,
		&r.PlatformAllocation,
		&r.CreatorAllocation,
		&r.TokensInPool,
		&r.PoolID,
		&r.LPMint,
		&r.TransferSignatures,
		&r.BurnSignatures,
		&r.GraduatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get graduation record: %w", err)
	}

	return &r, nil
}

package postgres

import (
	"context"
	"fmt"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

// GraduationStatusStore implements storage.GraduationStatusStore using
// PostgreSQL.
type GraduationStatusStore struct {
	pool *Pool
}

// NewGraduationStatusStore creates a new GraduationStatusStore.
func NewGraduationStatusStore(pool *Pool) *GraduationStatusStore {
	return &GraduationStatusStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GraduationStatusStore = (*GraduationStatusStore)(nil)

// Set inserts or replaces the status for status.TokenID.
func (s *GraduationStatusStore) Set(ctx context.Context, status *domain.GraduationStatus) error {
	if status == nil || status.TokenID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO graduation_statuses (
			token_id, phase, pool_id, lp_mint, lp_account,
			platform_transfer_sig, creator_transfer_sig, burn_signature,
			detail, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (token_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			pool_id = EXCLUDED.pool_id,
			lp_mint = EXCLUDED.lp_mint,
			lp_account = EXCLUDED.lp_account,
			platform_transfer_sig = EXCLUDED.platform_transfer_sig,
			creator_transfer_sig = EXCLUDED.creator_transfer_sig,
			burn_signature = EXCLUDED.burn_signature,
			detail = EXCLUDED.detail,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		status.TokenID,
		string(status.Phase),
		status.PoolID,
		status.LPMint,
		status.LPAccount,
		status.PlatformTransferSig,
		status.CreatorTransferSig,
		status.BurnSignature,
		status.Detail,
		status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("set graduation status: %w", err)
	}
	return nil
}

// Get retrieves the status for a token. Returns ErrNotFound if the
// token has never entered the graduation flow.
func (s *GraduationStatusStore) Get(ctx context.Context, tokenID string) (*domain.GraduationStatus, error) {
	query := `
		SELECT token_id, phase, pool_id, lp_mint, lp_account,
		       platform_transfer_sig, creator_transfer_sig, burn_signature,
		       detail, updated_at
		FROM graduation_statuses
		WHERE token_id = $1
	`

	var status domain.GraduationStatus
	var phaseStr string

	err := s.pool.QueryRow(ctx, query, tokenID).Scan(
		&status.TokenID,
		&phaseStr,
		&status.PoolID,
		&status.LPMint,
		&status.LPAccount,
		&status.PlatformTransferSig,
		&status.CreatorTransferSig,
		&status.BurnSignature,
		&status.Detail,
		&status.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get graduation status: %w", err)
	}

	status.Phase = domain.GraduationPhase(phaseStr)
	return &status, nil
}

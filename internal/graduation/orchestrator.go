// Package graduation moves tokens that crossed the treasury threshold
// from curve-priced trading to a permanent external liquidity pool.
package graduation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

var (
	// ErrInFlight is returned when a graduation for the token is
	// already running.
	ErrInFlight = errors.New("graduation already in flight")

	// ErrNotEligible is returned when the token has not crossed the
	// graduation threshold.
	ErrNotEligible = errors.New("token not eligible for graduation")

	// ErrProvisioningFailed marks a failed pool creation. The token is
	// left in FAILED_PROVISIONING and Graduate can be retried.
	ErrProvisioningFailed = errors.New("pool provisioning failed")

	// ErrBurnIncomplete marks a pool that is live with its ownership
	// tokens not yet burned. The token stays in PENDING_PERMANENT.
	ErrBurnIncomplete = errors.New("lp burn incomplete")
)

// Allocations is the treasury split computed at graduation. Liquidity
// is the exact remainder so the three parts always sum to the treasury.
type Allocations struct {
	Treasury  float64 // lamports at graduation
	Platform  float64 // lamports
	Creator   float64 // lamports
	Liquidity float64 // lamports migrated into the pool

	TokensInPool float64 // token base units reserved for the pool
}

// SplitTreasury computes the graduation allocations for a frozen state.
func SplitTreasury(st *domain.CurveState, fees domain.FeeSchedule) Allocations {
	platform := st.TreasuryBalance * fees.PlatformAllocShare
	creator := st.TreasuryBalance * fees.CreatorBonusShare
	return Allocations{
		Treasury:     st.TreasuryBalance,
		Platform:     platform,
		Creator:      creator,
		Liquidity:    st.TreasuryBalance - platform - creator,
		TokensInPool: st.TotalSupply * fees.PoolSupplyShare,
	}
}

// Orchestrator runs the terminal phase machine:
// Active -> PoolProvisioning -> PendingPermanent -> Graduated, with
// FailedProvisioning as the retryable failure branch. One graduation
// per token runs at a time; every phase change is persisted before the
// next side effect so a restart resumes where it stopped.
type Orchestrator struct {
	states      storage.CurveStateStore
	statuses    storage.GraduationStatusStore
	records     storage.GraduationRecordStore
	provisioner PoolProvisioner
	transferrer FundsTransferrer
	burner      *LPBurner
	fees        domain.FeeSchedule

	platformWallet string
	logger         *log.Logger
	nowFn          func() int64

	inflight sync.Map // tokenID -> struct{}
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPlatformWallet sets the recipient of the platform allocation.
func WithPlatformWallet(wallet string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.platformWallet = wallet
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOrchestratorClock overrides the time source. Used in tests.
func WithOrchestratorClock(now func() int64) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.nowFn = now
		}
	}
}

// NewOrchestrator wires the graduation flow.
func NewOrchestrator(
	states storage.CurveStateStore,
	statuses storage.GraduationStatusStore,
	records storage.GraduationRecordStore,
	provisioner PoolProvisioner,
	transferrer FundsTransferrer,
	burner *LPBurner,
	fees domain.FeeSchedule,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		states:      states,
		statuses:    statuses,
		records:     records,
		provisioner: provisioner,
		transferrer: transferrer,
		burner:      burner,
		fees:        fees,
		logger:      log.Default(),
		nowFn:       func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the durable phase for a token. Tokens that never
// entered the flow report ACTIVE.
func (o *Orchestrator) Status(ctx context.Context, tokenID string) (*domain.GraduationStatus, error) {
	status, err := o.statuses.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &domain.GraduationStatus{TokenID: tokenID, Phase: domain.PhaseActive}, nil
		}
		return nil, err
	}
	return status, nil
}

// Graduate runs the token through the phase machine to completion.
// Calling it again after a failure resumes from the persisted phase:
// FAILED_PROVISIONING re-runs provisioning, PENDING_PERMANENT retries
// only the burn. A finished graduation returns the stored record.
func (o *Orchestrator) Graduate(ctx context.Context, tokenID string) (*domain.GraduationRecord, error) {
	if _, loaded := o.inflight.LoadOrStore(tokenID, struct{}{}); loaded {
		return nil, fmt.Errorf("token %s: %w", tokenID, ErrInFlight)
	}
	defer o.inflight.Delete(tokenID)

	if rec, err := o.records.GetByTokenID(ctx, tokenID); err == nil {
		return rec, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check graduation record: %w", err)
	}

	st, err := o.states.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("token %s: %w", tokenID, ErrNotEligible)
		}
		return nil, fmt.Errorf("get curve state: %w", err)
	}
	if !st.IsGraduated {
		return nil, fmt.Errorf("token %s below threshold: %w", tokenID, ErrNotEligible)
	}

	status, err := o.Status(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get graduation status: %w", err)
	}

	alloc := SplitTreasury(st, o.fees)

	// A pool that already exists must not be provisioned again.
	if status.Phase != domain.PhasePendingPermanent {
		status, err = o.provision(ctx, st, status, alloc)
		if err != nil {
			return nil, err
		}
	}

	return o.finish(ctx, st, status, alloc)
}

// provision pays out the platform and creator allocations and creates
// the pool. Any failure parks the token in FAILED_PROVISIONING with the
// error recorded. Each confirmed transfer is persisted on the status
// before the next step, so a retry skips allocations already paid.
func (o *Orchestrator) provision(ctx context.Context, st *domain.CurveState, status *domain.GraduationStatus, alloc Allocations) (*domain.GraduationStatus, error) {
	status.Phase = domain.PhasePoolProvisioning
	status.Detail = ""
	if err := o.setStatus(ctx, status); err != nil {
		return nil, err
	}

	o.logger.Printf("[graduation] %s: provisioning pool, liquidity %.4f SOL, platform %.4f SOL, creator %.4f SOL",
		st.TokenID, alloc.Liquidity/domain.LamportsPerSOL,
		alloc.Platform/domain.LamportsPerSOL, alloc.Creator/domain.LamportsPerSOL)

	if status.PlatformTransferSig == "" {
		sig, err := o.transferrer.Transfer(ctx, st.TokenID, o.platformWallet, alloc.Platform)
		if err != nil {
			return nil, o.failProvisioning(ctx, status, fmt.Errorf("platform allocation: %w", err))
		}
		status.PlatformTransferSig = sig
		if err := o.setStatus(ctx, status); err != nil {
			return nil, err
		}
	}
	if status.CreatorTransferSig == "" {
		sig, err := o.transferrer.Transfer(ctx, st.TokenID, st.Creator, alloc.Creator)
		if err != nil {
			return nil, o.failProvisioning(ctx, status, fmt.Errorf("creator bonus: %w", err))
		}
		status.CreatorTransferSig = sig
		if err := o.setStatus(ctx, status); err != nil {
			return nil, err
		}
	}

	pool, err := o.provisioner.ProvisionPool(ctx, &ProvisionRequest{
		TokenID:     st.TokenID,
		SolAmount:   alloc.Liquidity,
		TokenAmount: alloc.TokensInPool,
	})
	if err != nil {
		return nil, o.failProvisioning(ctx, status, err)
	}

	status.Phase = domain.PhasePendingPermanent
	status.PoolID = pool.PoolID
	status.LPMint = pool.LPMint
	status.LPAccount = pool.LPAccount
	status.Detail = "pool live, lp burn pending"
	if err := o.setStatus(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// finish burns the LP tokens and writes the terminal record. A burn
// failure leaves the token queryable in PENDING_PERMANENT. The burn
// signature is persisted on the status before the record insert, so a
// transient insert failure never triggers a second burn attempt; an
// already-empty account counts as burned when the signature was lost.
func (o *Orchestrator) finish(ctx context.Context, st *domain.CurveState, status *domain.GraduationStatus, alloc Allocations) (*domain.GraduationRecord, error) {
	if status.BurnSignature == "" {
		burn, err := o.burner.BurnAll(ctx, status.LPMint, status.LPAccount)
		switch {
		case err == nil:
			status.BurnSignature = burn.Signature
			status.Detail = "lp burned, record pending"
			if setErr := o.setStatus(ctx, status); setErr != nil {
				return nil, setErr
			}
		case errors.Is(err, ErrNothingToBurn):
			// The account is already empty: a prior attempt burned it
			// but its signature never reached the status.
			status.Detail = "lp already burned"
			if setErr := o.setStatus(ctx, status); setErr != nil {
				return nil, setErr
			}
		default:
			status.Detail = fmt.Sprintf("burn failed: %v", err)
			if setErr := o.setStatus(ctx, status); setErr != nil {
				o.logger.Printf("[graduation] %s: persist burn failure: %v", st.TokenID, setErr)
			}
			return nil, fmt.Errorf("token %s: %w: %v", st.TokenID, ErrBurnIncomplete, err)
		}
	}

	burnSigs := []string{}
	if status.BurnSignature != "" {
		burnSigs = append(burnSigs, status.BurnSignature)
	}
	transferSigs := []string{}
	if status.PlatformTransferSig != "" {
		transferSigs = append(transferSigs, status.PlatformTransferSig)
	}
	if status.CreatorTransferSig != "" {
		transferSigs = append(transferSigs, status.CreatorTransferSig)
	}

	rec := &domain.GraduationRecord{
		TokenID:            st.TokenID,
		FinalPrice:         st.CurrentPrice,
		FinalSupply:        st.TotalSupply,
		FinalMarketCap:     st.MarketCap(),
		LiquidityMigrated:  alloc.Liquidity,
		PlatformAllocation: alloc.Platform,
		CreatorAllocation:  alloc.Creator,
		TokensInPool:       alloc.TokensInPool,
		PoolID:             status.PoolID,
		LPMint:             status.LPMint,
		TransferSignatures: transferSigs,
		BurnSignatures:     burnSigs,
		GraduatedAt:        o.nowFn(),
	}

	if err := o.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return o.records.GetByTokenID(ctx, st.TokenID)
		}
		return nil, fmt.Errorf("insert graduation record: %w", err)
	}

	status.Phase = domain.PhaseGraduated
	status.Detail = ""
	if err := o.setStatus(ctx, status); err != nil {
		return nil, err
	}

	o.logger.Printf("[graduation] %s graduated: pool %s, %.4f SOL migrated, burn %s",
		st.TokenID, rec.PoolID, rec.LiquidityMigrated/domain.LamportsPerSOL, status.BurnSignature)
	return rec, nil
}

func (o *Orchestrator) failProvisioning(ctx context.Context, status *domain.GraduationStatus, cause error) error {
	status.Phase = domain.PhaseFailedProvisioning
	status.Detail = cause.Error()
	if err := o.setStatus(ctx, status); err != nil {
		o.logger.Printf("[graduation] %s: persist provisioning failure: %v", status.TokenID, err)
	}
	return fmt.Errorf("token %s: %w: %v", status.TokenID, ErrProvisioningFailed, cause)
}

func (o *Orchestrator) setStatus(ctx context.Context, status *domain.GraduationStatus) error {
	status.UpdatedAt = o.nowFn()
	if err := o.statuses.Set(ctx, status); err != nil {
		return fmt.Errorf("persist graduation status: %w", err)
	}
	return nil
}

package domain

// GraduationPhase tracks a token through the terminal transition from
// curve-priced trading to a permanent external liquidity pool.
//
// Active → PoolProvisioning → PendingPermanent → Graduated, with
// FailedProvisioning as the retryable failure branch. PendingPermanent
// means the pool is live but its ownership tokens are not yet burned;
// it must stay operator-visible and is never collapsed into Active or
// Graduated.
type GraduationPhase string

const (
	PhaseActive             GraduationPhase = "ACTIVE"
	PhasePoolProvisioning   GraduationPhase = "POOL_PROVISIONING"
	PhasePendingPermanent   GraduationPhase = "PENDING_PERMANENT"
	PhaseGraduated          GraduationPhase = "GRADUATED"
	PhaseFailedProvisioning GraduationPhase = "FAILED_PROVISIONING"
)

// GraduationStatus is the durable phase record for a token. PoolID and
// LPMint are set once provisioning succeeds so a PendingPermanent token
// can resume the burn after a restart. Each side effect records its
// signature here the moment it confirms, so a retry never re-pays an
// allocation or re-burns an already emptied account.
type GraduationStatus struct {
	TokenID   string
	Phase     GraduationPhase
	PoolID    string
	LPMint    string
	LPAccount string // pool ownership token account, burn target

	PlatformTransferSig string // set once the platform allocation confirmed
	CreatorTransferSig  string // set once the creator bonus confirmed
	BurnSignature       string // set once the lp burn confirmed

	Detail    string // last error or progress note
	UpdatedAt int64  // unix ms
}

// GraduationRecord is the terminal 1:1 companion of a CurveState,
// created exactly once by a fully successful graduation.
type GraduationRecord struct {
	TokenID string

	FinalPrice     float64 // lamports per whole token
	FinalSupply    float64 // token base units
	FinalMarketCap float64 // lamports

	LiquidityMigrated  float64 // lamports moved into the pool
	PlatformAllocation float64 // lamports
	CreatorAllocation  float64 // lamports
	TokensInPool       float64 // token base units reserved for the pool

	PoolID             string
	LPMint             string
	TransferSignatures []string // platform and creator payouts
	BurnSignatures     []string

	GraduatedAt int64 // unix ms
}

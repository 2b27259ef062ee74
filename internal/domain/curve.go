package domain

// Base unit conversions. SOL amounts are expressed in lamports,
// token amounts in base units (6 decimals).
const (
	LamportsPerSOL   = 1_000_000_000
	LamportsPerToken = 1_000_000
)

// CurveParams defines the exponential issuance curve
// price(s) = BasePrice * (1+Growth)^(s/Scale).
type CurveParams struct {
	BasePrice float64 // lamports per whole token at zero supply
	Growth    float64 // per-token growth rate
	Scale     float64 // supply units per curve step (token base units per whole token)
	StepSize  float64 // integration step in token base units
}

// DefaultCurveParams returns the canonical curve parameters.
func DefaultCurveParams() CurveParams {
	return CurveParams{
		BasePrice: 69000,
		Growth:    0.00000015,
		Scale:     LamportsPerToken,
		StepSize:  1000 * LamportsPerToken,
	}
}

// FeeSchedule is the single canonical fee and allocation schedule.
// Every component reads fees from here; no other constants exist.
type FeeSchedule struct {
	// Trading fees, applied on the SOL leg of every trade.
	PlatformTradeFee float64 // fraction, e.g. 0.005
	CreatorTradeFee  float64 // fraction, e.g. 0.005

	// SlippageTolerance bounds the quoted-vs-executed output deviation.
	SlippageTolerance float64 // fraction, e.g. 0.01

	// GraduationThreshold is the treasury balance (lamports) that
	// triggers graduation.
	GraduationThreshold float64

	// Treasury split at graduation. LiquidityShare is derived as the
	// remainder so the three allocations always sum to the treasury.
	PlatformAllocShare float64 // fraction of treasury, e.g. 0.10
	CreatorBonusShare  float64 // fraction of treasury, e.g. 0.05

	// PoolSupplyShare is the fraction of circulating supply moved into
	// the liquidity pool at graduation.
	PoolSupplyShare float64 // e.g. 0.20
}

// DefaultFeeSchedule returns the canonical schedule: 0.5%/0.5% trading
// fees, 1% slippage tolerance, 500 SOL graduation threshold, 85/10/5
// treasury split, 20% of supply to the pool.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PlatformTradeFee:    0.005,
		CreatorTradeFee:     0.005,
		SlippageTolerance:   0.01,
		GraduationThreshold: 500 * LamportsPerSOL,
		PlatformAllocShare:  0.10,
		CreatorBonusShare:   0.05,
		PoolSupplyShare:     0.20,
	}
}

// LiquidityShare returns the treasury fraction migrated to the pool.
func (f FeeSchedule) LiquidityShare() float64 {
	return 1.0 - f.PlatformAllocShare - f.CreatorBonusShare
}

// CurveState is the per-token issuance curve state. It is created at
// the token-creation event, mutated only through applyTrade, and
// frozen once IsGraduated flips.
type CurveState struct {
	TokenID         string  // mint address
	Creator         string  // creator wallet, receives creator fees and bonus
	CurrentPrice    float64 // lamports per whole token
	TotalSupply     float64 // circulating supply, token base units
	MaxSupply       float64 // supply ceiling, token base units
	TreasuryBalance float64 // lamports
	TotalVolume     float64 // cumulative traded lamports
	IsGraduated     bool

	CreatedAt int64 // unix ms
	UpdatedAt int64 // unix ms
}

// NewCurveState returns a fresh curve state for a token at the default
// starting point: base price, zero circulating supply, 1B max supply.
func NewCurveState(tokenID, creator string, params CurveParams, now int64) *CurveState {
	return &CurveState{
		TokenID:      tokenID,
		Creator:      creator,
		CurrentPrice: params.BasePrice,
		TotalSupply:  0,
		MaxSupply:    1_000_000_000 * LamportsPerToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// GraduationProgress returns percentage progress toward the graduation
// threshold, capped at 100.
func (s *CurveState) GraduationProgress(threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	progress := s.TreasuryBalance / threshold * 100
	if progress > 100 {
		return 100
	}
	return progress
}

// MarketCap returns the market capitalization in lamports.
func (s *CurveState) MarketCap() float64 {
	return s.TotalSupply / LamportsPerToken * s.CurrentPrice
}

// TradeDirection indicates which side of the curve a trade hits.
type TradeDirection string

const (
	DirectionBuy  TradeDirection = "BUY"
	DirectionSell TradeDirection = "SELL"
)

// Quote is the result of pricing a trade against a curve state.
// For buys InputAmount is lamports and OutputAmount token base units;
// for sells the roles are reversed.
type Quote struct {
	Direction    TradeDirection
	InputAmount  float64
	OutputAmount float64

	NewPrice  float64 // lamports per whole token after the trade
	NewSupply float64 // token base units after the trade
	AvgPrice  float64 // average execution price, lamports per whole token

	PriceImpactPct float64 // capped at 99
	PlatformFee    float64 // lamports
	CreatorFee     float64 // lamports
	MinReceived    float64 // OutputAmount after slippage tolerance
}

// TotalFee returns the combined fee in lamports.
func (q *Quote) TotalFee() float64 {
	return q.PlatformFee + q.CreatorFee
}

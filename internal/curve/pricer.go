// Package curve prices trades against the exponential issuance curve.
// All functions are pure: they never mutate state and are safe to call
// repeatedly for previews.
package curve

import (
	"errors"
	"math"

	"curve-engine/internal/domain"
)

// Validation errors, rejected before any state is touched.
var (
	// ErrInvalidAmount is returned for non-positive or non-finite inputs.
	ErrInvalidAmount = errors.New("amount must be positive and finite")

	// ErrSellExceedsSupply is returned when a sell asks for more tokens
	// than are circulating on the curve.
	ErrSellExceedsSupply = errors.New("sell amount exceeds circulating supply")
)

// Pricer evaluates the curve price(s) = basePrice * (1+growth)^(s/scale)
// by stepwise discretized integration.
type Pricer struct {
	params domain.CurveParams
	fees   domain.FeeSchedule
}

// NewPricer creates a Pricer with the given curve parameters and fee
// schedule.
func NewPricer(params domain.CurveParams, fees domain.FeeSchedule) *Pricer {
	return &Pricer{params: params, fees: fees}
}

// Params returns the curve parameters the pricer was built with.
func (p *Pricer) Params() domain.CurveParams {
	return p.params
}

// PriceAt returns the marginal price (lamports per whole token) at the
// given circulating supply in token base units.
func (p *Pricer) PriceAt(supply float64) float64 {
	return p.params.BasePrice * math.Pow(1+p.params.Growth, supply/p.params.Scale)
}

// QuoteBuy prices a buy of solIn lamports against state. Fees are taken
// from the input; the net amount is integrated up the curve in fixed
// supply steps with a partial final step.
func (p *Pricer) QuoteBuy(solIn float64, state *domain.CurveState) (*domain.Quote, error) {
	if err := validateAmount(solIn); err != nil {
		return nil, err
	}

	platformFee := solIn * p.fees.PlatformTradeFee
	creatorFee := solIn * p.fees.CreatorTradeFee
	net := solIn - platformFee - creatorFee

	remaining := net
	supply := state.TotalSupply
	tokensOut := 0.0

	for remaining > 0 {
		price := p.PriceAt(supply)
		stepCost := price * p.params.StepSize / p.params.Scale

		if stepCost <= remaining {
			tokensOut += p.params.StepSize
			remaining -= stepCost
			supply += p.params.StepSize
		} else {
			// Partial final step at the current marginal price.
			tokensOut += remaining * p.params.Scale / price
			remaining = 0
		}
	}

	newSupply := state.TotalSupply + tokensOut
	newPrice := p.PriceAt(newSupply)

	avgPrice := 0.0
	if tokensOut > 0 {
		avgPrice = net / tokensOut * p.params.Scale
	}

	return &domain.Quote{
		Direction:      domain.DirectionBuy,
		InputAmount:    solIn,
		OutputAmount:   tokensOut,
		NewPrice:       newPrice,
		NewSupply:      newSupply,
		AvgPrice:       avgPrice,
		PriceImpactPct: priceImpact(state.CurrentPrice, newPrice),
		PlatformFee:    platformFee,
		CreatorFee:     creatorFee,
		MinReceived:    tokensOut * (1 - p.fees.SlippageTolerance),
	}, nil
}

// QuoteSell prices a sell of tokenIn base units against state. Each
// decrement is priced at the mid-point of its supply range so proceeds
// are not overstated; fees are taken from the gross output.
func (p *Pricer) QuoteSell(tokenIn float64, state *domain.CurveState) (*domain.Quote, error) {
	if err := validateAmount(tokenIn); err != nil {
		return nil, err
	}
	if tokenIn > state.TotalSupply {
		return nil, ErrSellExceedsSupply
	}

	remaining := tokenIn
	supply := state.TotalSupply
	gross := 0.0

	for remaining > 0 && supply > 0 {
		stepTokens := math.Min(remaining, p.params.StepSize)
		midSupply := supply - stepTokens/2
		price := p.PriceAt(midSupply)
		gross += price * stepTokens / p.params.Scale
		remaining -= stepTokens
		supply -= stepTokens
	}

	platformFee := gross * p.fees.PlatformTradeFee
	creatorFee := gross * p.fees.CreatorTradeFee
	net := gross - platformFee - creatorFee

	newSupply := state.TotalSupply - tokenIn
	newPrice := p.PriceAt(newSupply)

	avgPrice := 0.0
	if tokenIn > 0 {
		avgPrice = gross / tokenIn * p.params.Scale
	}

	return &domain.Quote{
		Direction:      domain.DirectionSell,
		InputAmount:    tokenIn,
		OutputAmount:   net,
		NewPrice:       newPrice,
		NewSupply:      newSupply,
		AvgPrice:       avgPrice,
		PriceImpactPct: priceImpact(newPrice, state.CurrentPrice),
		PlatformFee:    platformFee,
		CreatorFee:     creatorFee,
		MinReceived:    net * (1 - p.fees.SlippageTolerance),
	}, nil
}

// priceImpact returns the percentage move from lower to higher price,
// capped at 99.
func priceImpact(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	impact := (to - from) / from * 100
	if impact > 99 {
		return 99
	}
	return impact
}

func validateAmount(v float64) error {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidAmount
	}
	return nil
}

package graduation

import (
	"context"
	"errors"
	"fmt"
	"log"
)

var (
	// ErrInsufficientBalance is returned when a burn exceeds the LP
	// account balance.
	ErrInsufficientBalance = errors.New("insufficient lp token balance")

	// ErrNothingToBurn is returned by BurnAll on an empty LP account.
	ErrNothingToBurn = errors.New("no lp tokens to burn")
)

// permanencePct is the burned-supply percentage at which pool
// liquidity counts as permanently locked.
const permanencePct = 99.9

// BurnImpact describes what burning an LP amount does to the pool.
type BurnImpact struct {
	BurnedPct       float64 // percentage of total LP supply
	RemainingSupply float64
	IsPermanent     bool
}

// CalculateBurnImpact computes the effect of burning amount LP tokens
// out of totalSupply. Liquidity is permanent when the remaining supply
// hits zero or the burned share reaches the permanence threshold.
func CalculateBurnImpact(amount, totalSupply float64) BurnImpact {
	if totalSupply <= 0 {
		return BurnImpact{}
	}
	pct := amount / totalSupply * 100
	if pct > 100 {
		pct = 100
	}
	remaining := totalSupply - amount
	if remaining < 0 {
		remaining = 0
	}
	return BurnImpact{
		BurnedPct:       pct,
		RemainingSupply: remaining,
		IsPermanent:     remaining == 0 || pct >= permanencePct,
	}
}

// BurnResult reports a completed LP burn.
type BurnResult struct {
	Signature   string
	Amount      float64 // LP tokens burned, UI units
	Impact      BurnImpact
	Certificate string
}

// LPBurner burns pool ownership tokens to make liquidity permanent.
// Burns are preflighted through transaction simulation before submit.
type LPBurner struct {
	client    TokenAccountClient
	submitter BurnSubmitter
	logger    *log.Logger
}

// NewLPBurner creates a burner. A nil logger falls back to the default.
func NewLPBurner(client TokenAccountClient, submitter BurnSubmitter, logger *log.Logger) *LPBurner {
	if logger == nil {
		logger = log.Default()
	}
	return &LPBurner{client: client, submitter: submitter, logger: logger}
}

// Burn burns amount LP tokens from the given account.
func (b *LPBurner) Burn(ctx context.Context, lpMint, lpAccount string, amount float64) (*BurnResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("burn amount %f: %w", amount, ErrNothingToBurn)
	}

	balance, err := b.client.GetTokenAccountBalance(ctx, lpAccount)
	if err != nil {
		return nil, fmt.Errorf("get lp balance: %w", err)
	}
	if balance == nil || balance.UIAmount < amount {
		have := 0.0
		if balance != nil {
			have = balance.UIAmount
		}
		return nil, fmt.Errorf("have %f, need %f: %w", have, amount, ErrInsufficientBalance)
	}

	supply, err := b.client.GetTokenSupply(ctx, lpMint)
	if err != nil {
		return nil, fmt.Errorf("get lp supply: %w", err)
	}

	tx, err := b.submitter.Prepare(ctx, lpMint, lpAccount, amount)
	if err != nil {
		return nil, fmt.Errorf("prepare burn: %w", err)
	}

	sim, err := b.client.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("simulate burn: %w", err)
	}
	if sim != nil && sim.Err != nil {
		return nil, fmt.Errorf("burn preflight rejected: %v", sim.Err)
	}

	sig, err := b.submitter.Submit(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("submit burn: %w", err)
	}

	totalSupply := 0.0
	if supply != nil {
		totalSupply = supply.UIAmount
	}
	impact := CalculateBurnImpact(amount, totalSupply)

	result := &BurnResult{
		Signature:   sig,
		Amount:      amount,
		Impact:      impact,
		Certificate: formatBurnCertificate(sig, lpMint, amount, impact),
	}

	b.logger.Printf("[burner] burned %.6f LP of %s (%.2f%% of supply, permanent=%v) tx=%s",
		amount, lpMint, impact.BurnedPct, impact.IsPermanent, sig)
	return result, nil
}

// BurnAll burns the entire LP balance of the account.
func (b *LPBurner) BurnAll(ctx context.Context, lpMint, lpAccount string) (*BurnResult, error) {
	balance, err := b.client.GetTokenAccountBalance(ctx, lpAccount)
	if err != nil {
		return nil, fmt.Errorf("get lp balance: %w", err)
	}
	if balance == nil || balance.UIAmount <= 0 {
		return nil, fmt.Errorf("account %s: %w", lpAccount, ErrNothingToBurn)
	}
	return b.Burn(ctx, lpMint, lpAccount, balance.UIAmount)
}

// formatBurnCertificate renders a human-readable burn summary.
func formatBurnCertificate(sig, lpMint string, amount float64, impact BurnImpact) string {
	status := "PARTIAL BURN"
	if impact.IsPermanent {
		status = "PERMANENT LIQUIDITY"
	}
	return fmt.Sprintf(
		"LP TOKEN BURN CERTIFICATE\ntransaction: %s\nlp mint: %s\nburned: %.6f LP tokens (%.2f%% of supply)\nremaining supply: %.6f\nstatus: %s",
		sig, lpMint, amount, impact.BurnedPct, impact.RemainingSupply, status)
}

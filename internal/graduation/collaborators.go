package graduation

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"curve-engine/internal/solana"
)

// TokenAccountClient is the chain read surface the burner needs. The
// solana HTTP client satisfies it.
type TokenAccountClient interface {
	GetTokenSupply(ctx context.Context, mint string) (*solana.TokenAmount, error)
	GetTokenAccountBalance(ctx context.Context, account string) (*solana.TokenAmount, error)
	SimulateTransaction(ctx context.Context, txBase64 string) (*solana.SimulationResult, error)
}

// BurnSubmitter builds and submits burn transactions. Split from the
// read client so burns can be preflighted between prepare and submit.
type BurnSubmitter interface {
	// Prepare builds a serialized burn transaction, base64 encoded.
	Prepare(ctx context.Context, lpMint, lpAccount string, amount float64) (string, error)

	// Submit sends a prepared transaction and returns its signature.
	Submit(ctx context.Context, txBase64 string) (string, error)
}

// ProvisionRequest asks for a new external liquidity pool.
type ProvisionRequest struct {
	TokenID     string
	SolAmount   float64 // lamports migrated into the pool
	TokenAmount float64 // token base units reserved for the pool
}

// ProvisionResult identifies the created pool and its ownership tokens.
type ProvisionResult struct {
	PoolID    string
	LPMint    string
	LPAccount string
	LPAmount  float64 // LP tokens minted to LPAccount, UI units
}

// PoolProvisioner creates the external liquidity pool at graduation.
type PoolProvisioner interface {
	ProvisionPool(ctx context.Context, req *ProvisionRequest) (*ProvisionResult, error)
}

// FundsTransferrer moves treasury lamports to the platform and creator
// wallets during graduation.
type FundsTransferrer interface {
	Transfer(ctx context.Context, tokenID, recipient string, lamports float64) (string, error)
}

// StubProvisioner is an in-process PoolProvisioner that mints synthetic
// pool identifiers. It stands in for the AMM integration in tests and
// dry runs.
type StubProvisioner struct {
	logger *log.Logger

	mu    sync.Mutex
	pools map[string]*ProvisionResult
}

// NewStubProvisioner creates a stub provisioner.
func NewStubProvisioner(logger *log.Logger) *StubProvisioner {
	if logger == nil {
		logger = log.Default()
	}
	return &StubProvisioner{
		logger: logger,
		pools:  make(map[string]*ProvisionResult),
	}
}

// ProvisionPool returns a synthetic pool. Provisioning the same token
// twice returns the first result so retries stay idempotent.
func (p *StubProvisioner) ProvisionPool(_ context.Context, req *ProvisionRequest) (*ProvisionResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.pools[req.TokenID]; ok {
		return existing, nil
	}

	id := uuid.NewString()
	result := &ProvisionResult{
		PoolID:    "pool-" + id,
		LPMint:    "lpmint-" + id,
		LPAccount: "lpacct-" + id,
		LPAmount:  req.SolAmount / 1e9, // 1 LP per SOL of liquidity
	}
	p.pools[req.TokenID] = result

	p.logger.Printf("[provisioner] pool %s for %s (%.4f SOL, %.0f token units)",
		result.PoolID, req.TokenID, req.SolAmount/1e9, req.TokenAmount)
	return result, nil
}

var _ PoolProvisioner = (*StubProvisioner)(nil)

// StubSubmitter is a BurnSubmitter that fabricates transactions and
// signatures in process. It pairs with StubProvisioner for dry runs.
type StubSubmitter struct{}

// Prepare encodes a synthetic burn payload.
func (StubSubmitter) Prepare(_ context.Context, lpMint, lpAccount string, amount float64) (string, error) {
	payload := fmt.Sprintf("burn:%s:%s:%f", lpMint, lpAccount, amount)
	return base64.StdEncoding.EncodeToString([]byte(payload)), nil
}

// Submit returns a synthetic signature.
func (StubSubmitter) Submit(_ context.Context, _ string) (string, error) {
	return "burn-" + uuid.NewString(), nil
}

var _ BurnSubmitter = StubSubmitter{}

// LogTransferrer is a FundsTransferrer that records transfers without
// touching the chain. Each transfer gets a synthetic signature.
type LogTransferrer struct {
	logger *log.Logger
}

// NewLogTransferrer creates a log-only transferrer.
func NewLogTransferrer(logger *log.Logger) *LogTransferrer {
	if logger == nil {
		logger = log.Default()
	}
	return &LogTransferrer{logger: logger}
}

// Transfer logs the transfer and returns a synthetic signature.
func (t *LogTransferrer) Transfer(_ context.Context, tokenID, recipient string, lamports float64) (string, error) {
	sig := fmt.Sprintf("transfer-%s", uuid.NewString())
	t.logger.Printf("[transfer] %s: %.4f SOL -> %s (%s)", tokenID, lamports/1e9, recipient, sig)
	return sig, nil
}

var _ FundsTransferrer = (*LogTransferrer)(nil)

// Package stub provides in-memory solana client fakes for tests.
package stub

import (
	"context"
	"sync"

	"curve-engine/internal/solana"
)

// RPCClient implements solana.RPCClient for testing. Safe for
// concurrent use so tests can feed it while workers read.
type RPCClient struct {
	mu            sync.RWMutex
	Transactions  map[string]*solana.Transaction
	Signatures    map[string][]solana.SignatureInfo
	Accounts      map[string]*solana.AccountInfo
	TokenSupplies map[string]*solana.TokenAmount
	TokenBalances map[string]*solana.TokenAmount
	Simulation    *solana.SimulationResult
	Slot          int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions:  make(map[string]*solana.Transaction),
		Signatures:    make(map[string][]solana.SignatureInfo),
		Accounts:      make(map[string]*solana.AccountInfo),
		TokenSupplies: make(map[string]*solana.TokenAmount),
		TokenBalances: make(map[string]*solana.TokenAmount),
	}
}

// GetTransaction retrieves a transaction from the stub store. Unknown
// signatures return nil, matching the real client's not-found contract.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Transactions[signature], nil
}

// GetSignaturesForAddress retrieves signatures for an address from the stub store.
func (c *RPCClient) GetSignaturesForAddress(_ context.Context, address string, opts *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sigs, ok := c.Signatures[address]
	if !ok {
		return nil, nil
	}

	if opts != nil && opts.Limit > 0 && opts.Limit < len(sigs) {
		return sigs[:opts.Limit], nil
	}

	return sigs, nil
}

// GetAccountInfo retrieves account info from the stub store.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Accounts[pubkey], nil
}

// GetSlot returns the configured slot.
func (c *RPCClient) GetSlot(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Slot, nil
}

// GetTokenSupply retrieves a token supply from the stub store.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TokenSupplies[mint], nil
}

// GetTokenAccountBalance retrieves a token balance from the stub store.
func (c *RPCClient) GetTokenAccountBalance(_ context.Context, account string) (*solana.TokenAmount, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TokenBalances[account], nil
}

// SimulateTransaction returns the configured simulation result.
func (c *RPCClient) SimulateTransaction(_ context.Context, _ string) (*solana.SimulationResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Simulation != nil {
		return c.Simulation, nil
	}
	return &solana.SimulationResult{}, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// AddSignatures adds signatures for an address to the stub store.
func (c *RPCClient) AddSignatures(address string, sigs []solana.SignatureInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Signatures[address] = sigs
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

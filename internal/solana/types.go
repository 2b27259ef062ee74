package solana

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// TokenAmount is an SPL token amount from getTokenSupply or
// getTokenAccountBalance. Amount is the raw base-unit string as
// returned by the node; UIAmount is decimal-adjusted.
type TokenAmount struct {
	Amount   string
	Decimals int
	UIAmount float64
}

// SimulationResult is the outcome of simulateTransaction.
type SimulationResult struct {
	Err  interface{}
	Logs []string
}

package domain

// Trade is an immutable record of a settled curve trade. The
// transaction signature is the idempotency key: the storage layer
// enforces its uniqueness and replays return the stored record.
type Trade struct {
	Signature string // transaction signature, unique
	TokenID   string // mint address
	Trader    string // trader wallet address
	Direction TradeDirection

	SolAmount   float64 // lamports moved on the SOL leg
	TokenAmount float64 // token base units moved on the token leg
	Price       float64 // average execution price, lamports per whole token

	PlatformFee float64 // lamports
	CreatorFee  float64 // lamports

	NewPrice           float64 // marginal price after the trade
	NewSupply          float64 // circulating supply after the trade
	GraduationProgress float64 // percentage at time of trade

	Slot      int64 // chain slot the trade settled in
	BlockTime int64 // unix ms
}

// Package state owns the mutable per-token curve state. Every mutation
// goes through ApplyTrade, which serializes per token, persists the
// trade under its signature and flips graduation exactly once.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"curve-engine/internal/curve"
	"curve-engine/internal/domain"
	"curve-engine/internal/storage"
)

var (
	// ErrUnknownToken is returned when a trade references a token that
	// was never registered.
	ErrUnknownToken = errors.New("unknown token")

	// ErrAlreadyGraduated is returned when a trade arrives for a token
	// whose curve is frozen.
	ErrAlreadyGraduated = errors.New("token already graduated")

	// ErrExceedsMaxSupply is returned when a buy would push circulating
	// supply past the ceiling.
	ErrExceedsMaxSupply = errors.New("trade exceeds max supply")
)

// ApplyInput carries one settled chain trade into the state machine.
// Amount is the raw input: lamports for buys, token base units for
// sells. Pricing happens inside ApplyTrade under the per-token lock so
// concurrent trades never settle against the same supply snapshot.
type ApplyInput struct {
	Signature string
	TokenID   string
	Trader    string
	Direction domain.TradeDirection
	Amount    float64
	Slot      int64
	BlockTime int64 // unix ms, 0 means now
}

// ApplyResult reports the outcome of ApplyTrade.
type ApplyResult struct {
	Trade *domain.Trade
	State *domain.CurveState

	// Graduated is true on exactly the trade that crossed the
	// graduation threshold.
	Graduated bool

	// Replayed is true when the signature was already applied and the
	// stored trade is returned unchanged.
	Replayed bool
}

// Service applies trades to curve states. Safe for concurrent use;
// mutations for the same token are serialized.
type Service struct {
	states storage.CurveStateStore
	trades storage.TradeStore
	pricer *curve.Pricer
	fees   domain.FeeSchedule

	logger *log.Logger
	nowFn  func() int64

	locks sync.Map // tokenID -> *sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() int64) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New creates a state service on top of the given stores.
func New(states storage.CurveStateStore, trades storage.TradeStore, pricer *curve.Pricer, fees domain.FeeSchedule, opts ...Option) *Service {
	s := &Service{
		states: states,
		trades: trades,
		pricer: pricer,
		fees:   fees,
		logger: log.Default(),
		nowFn:  func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates the curve state for a newly created token at the
// default starting point. Registering an existing token is a no-op and
// returns the stored state, so creation-event replays are harmless.
func (s *Service) Register(ctx context.Context, tokenID, creator string, createdAt int64) (*domain.CurveState, error) {
	mu := s.lockFor(tokenID)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.states.Get(ctx, tokenID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get curve state: %w", err)
	}

	if createdAt == 0 {
		createdAt = s.nowFn()
	}
	st := domain.NewCurveState(tokenID, creator, s.pricer.Params(), createdAt)
	if err := s.states.Upsert(ctx, st); err != nil {
		return nil, fmt.Errorf("create curve state: %w", err)
	}

	s.logger.Printf("[state] registered token %s", tokenID)
	return st, nil
}

// Get returns the current state for a token.
func (s *Service) Get(ctx context.Context, tokenID string) (*domain.CurveState, error) {
	st, err := s.states.Get(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	return st, nil
}

// List returns all known curve states.
func (s *Service) List(ctx context.Context) ([]*domain.CurveState, error) {
	return s.states.List(ctx)
}

// Quote prices a trade against the current state without mutating it.
func (s *Service) Quote(ctx context.Context, tokenID string, direction domain.TradeDirection, amount float64) (*domain.Quote, error) {
	st, err := s.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if st.IsGraduated {
		return nil, ErrAlreadyGraduated
	}
	return s.quote(st, direction, amount)
}

func (s *Service) quote(st *domain.CurveState, direction domain.TradeDirection, amount float64) (*domain.Quote, error) {
	if direction == domain.DirectionSell {
		return s.pricer.QuoteSell(amount, st)
	}
	return s.pricer.QuoteBuy(amount, st)
}

// ApplyTrade prices and settles one trade against the token's curve
// state. The signature is the idempotency key: a replay returns the
// stored trade without touching the state. The quote is computed under
// the per-token lock, never from a caller-held snapshot, so concurrent
// trades for one token settle sequentially against the live supply.
// The threshold crossing flips IsGraduated and reports Graduated=true
// on exactly one trade.
func (s *Service) ApplyTrade(ctx context.Context, in *ApplyInput) (*ApplyResult, error) {
	if in == nil || in.Signature == "" || in.TokenID == "" {
		return nil, fmt.Errorf("apply trade: %w", storage.ErrInvalidInput)
	}

	mu := s.lockFor(in.TokenID)
	mu.Lock()
	defer mu.Unlock()

	st, err := s.states.Get(ctx, in.TokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("token %s: %w", in.TokenID, ErrUnknownToken)
		}
		return nil, fmt.Errorf("get curve state: %w", err)
	}

	// Replays must short-circuit before any graduated or supply check:
	// the original application already passed them.
	if stored, err := s.trades.GetBySignature(ctx, in.Signature); err == nil {
		return &ApplyResult{Trade: stored, State: st, Replayed: true}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("check signature: %w", err)
	}

	if st.IsGraduated {
		return nil, fmt.Errorf("token %s: %w", in.TokenID, ErrAlreadyGraduated)
	}

	q, err := s.quote(st, in.Direction, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("price trade %s: %w", in.Signature, err)
	}
	if q.Direction == domain.DirectionBuy && q.NewSupply > st.MaxSupply {
		return nil, fmt.Errorf("token %s: %w", in.TokenID, ErrExceedsMaxSupply)
	}

	blockTime := in.BlockTime
	if blockTime == 0 {
		blockTime = s.nowFn()
	}

	trade := s.buildTrade(in, q, blockTime)

	if err := s.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race against another instance writing the same
			// signature. Return what it stored.
			stored, getErr := s.trades.GetBySignature(ctx, in.Signature)
			if getErr != nil {
				return nil, fmt.Errorf("fetch replayed trade: %w", getErr)
			}
			return &ApplyResult{Trade: stored, State: st, Replayed: true}, nil
		}
		return nil, fmt.Errorf("insert trade: %w", err)
	}

	graduated := s.mutate(st, q, blockTime)
	trade.GraduationProgress = st.GraduationProgress(s.fees.GraduationThreshold)

	if err := s.states.Upsert(ctx, st); err != nil {
		// Withdraw the trade so the retry re-applies the full mutation
		// instead of short-circuiting on the replay path with a state
		// that never absorbed it.
		if delErr := s.trades.Delete(ctx, in.Signature); delErr != nil {
			s.logger.Printf("[state] trade %s orphaned after failed state persist: %v", in.Signature, delErr)
		}
		return nil, fmt.Errorf("persist curve state: %w", err)
	}

	if graduated {
		s.logger.Printf("[state] token %s crossed graduation threshold at price %.0f", in.TokenID, st.CurrentPrice)
	}

	return &ApplyResult{Trade: trade, State: st, Graduated: graduated}, nil
}

// buildTrade maps a quote onto the immutable trade record. SolAmount is
// the lamports the trader moved: input for buys, net proceeds for sells.
func (s *Service) buildTrade(in *ApplyInput, q *domain.Quote, blockTime int64) *domain.Trade {
	trade := &domain.Trade{
		Signature:   in.Signature,
		TokenID:     in.TokenID,
		Trader:      in.Trader,
		Direction:   q.Direction,
		Price:       q.AvgPrice,
		PlatformFee: q.PlatformFee,
		CreatorFee:  q.CreatorFee,
		NewPrice:    q.NewPrice,
		NewSupply:   q.NewSupply,
		Slot:        in.Slot,
		BlockTime:   blockTime,
	}
	if q.Direction == domain.DirectionBuy {
		trade.SolAmount = q.InputAmount
		trade.TokenAmount = q.OutputAmount
	} else {
		trade.SolAmount = q.OutputAmount
		trade.TokenAmount = q.InputAmount
	}
	return trade
}

// mutate folds the quote into the state and reports whether this trade
// crossed the graduation threshold.
func (s *Service) mutate(st *domain.CurveState, q *domain.Quote, now int64) bool {
	st.CurrentPrice = q.NewPrice
	st.TotalSupply = q.NewSupply
	st.UpdatedAt = now

	if q.Direction == domain.DirectionBuy {
		// Fees go to platform and creator; only the net reaches the
		// treasury.
		st.TreasuryBalance += q.InputAmount - q.TotalFee()
		st.TotalVolume += q.InputAmount
	} else {
		// The curve pays out gross; the seller receives net of fees.
		st.TreasuryBalance -= q.OutputAmount + q.TotalFee()
		if st.TreasuryBalance < 0 {
			st.TreasuryBalance = 0
		}
		st.TotalVolume += q.OutputAmount + q.TotalFee()
	}

	if !st.IsGraduated && st.TreasuryBalance >= s.fees.GraduationThreshold {
		st.IsGraduated = true
		return true
	}
	return false
}

func (s *Service) lockFor(tokenID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(tokenID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

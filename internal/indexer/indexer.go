// Package indexer tails the launch program on chain and feeds every
// settled transaction through one dedup/apply path. Two sources funnel
// in: a websocket log subscription for low latency and a fixed-interval
// signature poll that backstops missed notifications.
package indexer

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"curve-engine/internal/candles"
	"curve-engine/internal/chainlog"
	"curve-engine/internal/domain"
	"curve-engine/internal/notify"
	"curve-engine/internal/observability"
	"curve-engine/internal/solana"
	"curve-engine/internal/state"
	"curve-engine/internal/storage"
)

// Config controls indexer timing and concurrency.
type Config struct {
	// ProgramID is the launch program address to tail.
	ProgramID string

	// PollInterval is the signature polling period.
	PollInterval time.Duration

	// ReconcileInterval is the candle backfill/archive period.
	ReconcileInterval time.Duration

	// SignatureLimit bounds one poll batch.
	SignatureLimit int

	// FetchConcurrency bounds concurrent transaction fetches.
	FetchConcurrency int64
}

// DefaultConfig returns the default indexer configuration.
func DefaultConfig(programID string) Config {
	return Config{
		ProgramID:         programID,
		PollInterval:      5 * time.Second,
		ReconcileInterval: time.Minute,
		SignatureLimit:    100,
		FetchConcurrency:  8,
	}
}

// GraduationTrigger is invoked when a trade crosses the graduation
// threshold. It runs on the apply path worker; implementations do their
// own error handling.
type GraduationTrigger func(ctx context.Context, tokenID string)

// Indexer drives the chain-to-state pipeline.
type Indexer struct {
	cfg     Config
	rpc     solana.RPCClient
	ws      solana.WSClient
	parser  *chainlog.Parser
	state   *state.Service
	candles *candles.Aggregator
	trades  storage.TradeStore

	publisher notify.Publisher
	trigger   GraduationTrigger
	logger    *log.Logger

	seen sync.Map // signature -> struct{}
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithPublisher sets the event publisher.
func WithPublisher(p notify.Publisher) Option {
	return func(ix *Indexer) {
		if p != nil {
			ix.publisher = p
		}
	}
}

// WithGraduationTrigger sets the threshold-crossing callback.
func WithGraduationTrigger(trigger GraduationTrigger) Option {
	return func(ix *Indexer) {
		ix.trigger = trigger
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// New creates an indexer.
func New(
	cfg Config,
	rpc solana.RPCClient,
	ws solana.WSClient,
	stateSvc *state.Service,
	aggregator *candles.Aggregator,
	trades storage.TradeStore,
	opts ...Option,
) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = time.Minute
	}
	if cfg.SignatureLimit <= 0 {
		cfg.SignatureLimit = 100
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 8
	}

	ix := &Indexer{
		cfg:       cfg,
		rpc:       rpc,
		ws:        ws,
		parser:    chainlog.NewParser(),
		state:     stateSvc,
		candles:   aggregator,
		trades:    trades,
		publisher: notify.NewLogPublisher(nil),
		logger:    log.Default(),
		sem:       semaphore.NewWeighted(cfg.FetchConcurrency),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Run blocks until ctx is cancelled, then drains in-flight work.
func (ix *Indexer) Run(ctx context.Context) error {
	notifs, err := ix.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions: []string{ix.cfg.ProgramID},
	})
	if err != nil {
		return err
	}

	ix.logger.Printf("[indexer] tailing program %s (poll %s, reconcile %s)",
		ix.cfg.ProgramID, ix.cfg.PollInterval, ix.cfg.ReconcileInterval)

	ix.wg.Add(3)
	go ix.wsLoop(ctx, notifs)
	go ix.pollLoop(ctx)
	go ix.reconcileLoop(ctx)

	<-ctx.Done()
	ix.wg.Wait()
	ix.logger.Printf("[indexer] drained, stopping")
	return nil
}

func (ix *Indexer) wsLoop(ctx context.Context, notifs <-chan solana.LogNotification) {
	defer ix.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifs:
			if !ok {
				return
			}
			if notif.Err != nil {
				continue
			}
			ix.enqueue(ctx, notif.Signature)
		}
	}
}

func (ix *Indexer) pollLoop(ctx context.Context) {
	defer ix.wg.Done()
	ticker := time.NewTicker(ix.cfg.PollInterval)
	defer ticker.Stop()

	// One immediate pass catches up before the first tick.
	ix.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.poll(ctx)
		}
	}
}

// poll fetches the latest program signatures. An RPC failure skips the
// cycle; the next tick retries.
func (ix *Indexer) poll(ctx context.Context) {
	sigs, err := ix.rpc.GetSignaturesForAddress(ctx, ix.cfg.ProgramID, &solana.SignaturesOpts{
		Limit: ix.cfg.SignatureLimit,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			ix.logger.Printf("[indexer] poll cycle failed: %v", err)
			observability.DefaultMetrics.IndexerCycleError.Inc()
		}
		return
	}

	observability.DefaultMetrics.SignaturesPolled.Add(float64(len(sigs)))

	// Signatures arrive newest first; apply oldest first.
	for i := len(sigs) - 1; i >= 0; i-- {
		if sigs[i].Err != nil {
			continue
		}
		ix.enqueue(ctx, sigs[i].Signature)
	}
}

// enqueue starts one bounded fetch/apply worker for a signature not
// seen before. The in-memory set screens fast duplicates; the persisted
// trade record is the durable guard.
func (ix *Indexer) enqueue(ctx context.Context, signature string) {
	if signature == "" {
		return
	}
	if _, dup := ix.seen.LoadOrStore(signature, struct{}{}); dup {
		return
	}

	if _, err := ix.trades.GetBySignature(ctx, signature); err == nil {
		return
	}

	if err := ix.sem.Acquire(ctx, 1); err != nil {
		ix.seen.Delete(signature)
		return
	}

	ix.wg.Add(1)
	go func() {
		defer ix.wg.Done()
		defer ix.sem.Release(1)
		ix.fetchAndApply(ctx, signature)
	}()
}

func (ix *Indexer) fetchAndApply(ctx context.Context, signature string) {
	tx, err := ix.rpc.GetTransaction(ctx, signature)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			ix.logger.Printf("[indexer] fetch %s: %v", signature, err)
		}
		// Forget it so the next poll cycle retries.
		ix.seen.Delete(signature)
		return
	}
	if tx == nil {
		ix.seen.Delete(signature)
		return
	}
	if tx.Signature == "" {
		tx.Signature = signature
	}

	ev := ix.parser.Parse(tx)
	ix.dispatch(ctx, ev)
}

// dispatch routes one decoded event. Unrecognized events skip exactly
// their own signature and never stop the stream.
func (ix *Indexer) dispatch(ctx context.Context, ev *chainlog.Event) {
	observability.UpdateHighestSlot(ev.Slot)
	observability.DefaultMetrics.LastEventTimestamp.Set(float64(ev.BlockTime) / 1000)

	switch ev.Kind {
	case chainlog.KindCreation:
		ix.handleCreation(ctx, ev)
	case chainlog.KindBuy, chainlog.KindSell:
		ix.handleTrade(ctx, ev)
	default:
		observability.RecordEventSkipped("unrecognized")
		ix.logger.Printf("[indexer] skipping %s: %s", ev.Signature, ev.Reason)
	}
}

// TokenCreated is the payload published with a creation event. The
// curve and treasury accounts are derived from the mint so downstream
// consumers can watch them without re-deriving.
type TokenCreated struct {
	State           *domain.CurveState
	CurveAccount    string
	TreasuryAccount string
}

func (ix *Indexer) handleCreation(ctx context.Context, ev *chainlog.Event) {
	st, err := ix.state.Register(ctx, ev.Mint, ev.Trader, ev.BlockTime)
	if err != nil {
		ix.logger.Printf("[indexer] register %s: %v", ev.Mint, err)
		observability.RecordEventSkipped("register_failed")
		return
	}

	created := TokenCreated{State: st}
	if created.CurveAccount, err = solana.DeriveCurvePDA(ev.Mint, ix.cfg.ProgramID); err != nil {
		ix.logger.Printf("[indexer] derive curve account for %s: %v", ev.Mint, err)
	}
	if created.TreasuryAccount, err = solana.DeriveTreasuryPDA(ev.Mint, ix.cfg.ProgramID); err != nil {
		ix.logger.Printf("[indexer] derive treasury account for %s: %v", ev.Mint, err)
	}

	observability.RecordEventProcessed(string(ev.Kind))
	observability.RecordTokenRegistered()
	ix.publisher.Publish(ctx, notify.Event{
		Type:    notify.EventTokenCreated,
		TokenID: ev.Mint,
		At:      ev.BlockTime,
		Payload: created,
	})
	ix.logger.Printf("[indexer] token %s (%s) created by %s, curve %s treasury %s",
		ev.Name, ev.Mint, ev.Trader, created.CurveAccount, created.TreasuryAccount)
}

func (ix *Indexer) handleTrade(ctx context.Context, ev *chainlog.Event) {
	amount := ev.SolAmount * domain.LamportsPerSOL
	if ev.Kind == chainlog.KindSell {
		amount = ev.TokenAmount * domain.LamportsPerToken
	}

	res, err := ix.applyTrade(ctx, ev, &state.ApplyInput{
		Signature: ev.Signature,
		TokenID:   ev.Mint,
		Trader:    ev.Trader,
		Direction: ev.Direction(),
		Amount:    amount,
		Slot:      ev.Slot,
		BlockTime: ev.BlockTime,
	})
	if err != nil {
		ix.logger.Printf("[indexer] apply %s: %v", ev.Signature, err)
		observability.RecordEventSkipped("apply_failed")
		return
	}
	if res.Replayed {
		observability.RecordTradeReplayed()
		return
	}

	observability.RecordEventProcessed(string(ev.Kind))
	observability.RecordTradeApplied(string(res.Trade.Direction), res.Trade.SolAmount)

	if err := ix.candles.OnTrade(ctx, res.Trade); err != nil {
		ix.logger.Printf("[indexer] candle update %s: %v", ev.Signature, err)
	} else {
		observability.DefaultMetrics.CandlesUpserted.Add(float64(len(domain.Timeframes)))
	}

	ix.publisher.Publish(ctx, notify.Event{
		Type:    notify.EventTradeApplied,
		TokenID: ev.Mint,
		At:      ev.BlockTime,
		Payload: res.Trade,
	})
	ix.publisher.Publish(ctx, notify.Event{
		Type:    notify.EventPriceUpdated,
		TokenID: ev.Mint,
		At:      ev.BlockTime,
		Payload: res.State,
	})

	if res.Graduated {
		ix.publisher.Publish(ctx, notify.Event{
			Type:    notify.EventGraduated,
			TokenID: ev.Mint,
			At:      ev.BlockTime,
			Payload: res.State,
		})
		observability.DefaultMetrics.GraduationsStarted.Inc()
		if ix.trigger != nil {
			ix.trigger(ctx, ev.Mint)
		}
	}
}

// applyTrade settles the logged trade; the state service reprices it
// under the per-token lock. An unknown token is registered on the fly
// so trades that predate the indexer's view of the creation event
// still apply.
func (ix *Indexer) applyTrade(ctx context.Context, ev *chainlog.Event, in *state.ApplyInput) (*state.ApplyResult, error) {
	res, err := ix.state.ApplyTrade(ctx, in)
	if errors.Is(err, state.ErrUnknownToken) {
		if _, regErr := ix.state.Register(ctx, ev.Mint, "", ev.BlockTime); regErr != nil {
			return nil, regErr
		}
		observability.RecordTokenRegistered()
		return ix.state.ApplyTrade(ctx, in)
	}
	return res, err
}

// reconcileLoop periodically backfills candle gaps from persisted trade
// history and ships closed candles to the archive.
func (ix *Indexer) reconcileLoop(ctx context.Context) {
	defer ix.wg.Done()
	ticker := time.NewTicker(ix.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.reconcile(ctx)
		}
	}
}

func (ix *Indexer) reconcile(ctx context.Context) {
	if slot, err := ix.rpc.GetSlot(ctx); err == nil && slot > 0 {
		observability.UpdateHighestSlot(slot)
	}

	states, err := ix.state.List(ctx)
	if err != nil {
		ix.logger.Printf("[indexer] reconcile: list states: %v", err)
		return
	}
	observability.DefaultMetrics.ActiveTokens.Set(float64(len(states)))

	now := time.Now().UnixMilli()
	lookback := 2 * ix.cfg.ReconcileInterval.Milliseconds()

	for _, st := range states {
		n, err := ix.candles.Backfill(ctx, ix.trades, st.TokenID, now-lookback, now)
		if err != nil {
			ix.logger.Printf("[indexer] reconcile backfill %s: %v", st.TokenID, err)
			continue
		}
		if n > 0 {
			observability.DefaultMetrics.CandlesBackfilled.Add(float64(n))
		}

		archived, err := ix.candles.Archive(ctx, st.TokenID, now)
		if err != nil {
			ix.logger.Printf("[indexer] reconcile archive %s: %v", st.TokenID, err)
			continue
		}
		if archived > 0 {
			observability.DefaultMetrics.CandlesArchived.Add(float64(archived))
		}
	}
}

package indexer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-engine/internal/candles"
	"curve-engine/internal/curve"
	"curve-engine/internal/domain"
	"curve-engine/internal/notify"
	"curve-engine/internal/solana"
	"curve-engine/internal/solana/stub"
	"curve-engine/internal/state"
	"curve-engine/internal/storage/memory"
)

const (
	testProgram = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	testMint    = "So11111111111111111111111111111111111111112"
	testTrader  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

// stubWS feeds canned log notifications.
type stubWS struct {
	ch chan solana.LogNotification
}

func newStubWS() *stubWS {
	return &stubWS{ch: make(chan solana.LogNotification, 64)}
}

func (s *stubWS) SubscribeLogs(_ context.Context, _ solana.LogsFilter) (<-chan solana.LogNotification, error) {
	return s.ch, nil
}

func (s *stubWS) Close() error { return nil }

type fixture struct {
	ix        *Indexer
	rpc       *stub.RPCClient
	ws        *stubWS
	state     *state.Service
	candles   *memory.CandleStore
	trades    *memory.TradeStore
	publisher *notify.ChannelPublisher
	cancel    context.CancelFunc
	done      chan struct{}
	triggers  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fees := domain.DefaultFeeSchedule()
	pricer := curve.NewPricer(domain.DefaultCurveParams(), fees)

	f := &fixture{
		rpc:       stub.NewRPCClient(),
		ws:        newStubWS(),
		candles:   memory.NewCandleStore(),
		trades:    memory.NewTradeStore(),
		publisher: notify.NewChannelPublisher(64, nil),
		done:      make(chan struct{}),
	}
	f.state = state.New(memory.NewCurveStateStore(), f.trades, pricer, fees)

	cfg := DefaultConfig(testProgram)
	cfg.PollInterval = time.Hour // ws-only unless a test overrides
	cfg.ReconcileInterval = time.Hour

	f.ix = New(cfg, f.rpc, f.ws, f.state,
		candles.NewAggregator(f.candles), f.trades,
		WithPublisher(f.publisher),
		WithGraduationTrigger(func(context.Context, string) { f.triggers.Add(1) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() {
		defer close(f.done)
		_ = f.ix.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func (f *fixture) waitEvent(t *testing.T, want notify.EventType) notify.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-f.publisher.Events():
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func creationTx(sig string) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Slot:      100,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			LogMessages: []string{
				"Program log: Instruction: Create",
				"Program log: Token created successfully: Moon Cat (MCAT)",
				"Program log: Mint address: " + testMint,
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{testTrader}},
	}
}

func buyTx(sig, amounts string) *solana.Transaction {
	return &solana.Transaction{
		Signature: sig,
		Slot:      101,
		BlockTime: 1700000060,
		Meta: &solana.TransactionMeta{
			LogMessages: []string{
				"Program log: Instruction: Buy",
				"Program log: Bought " + amounts,
			},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{testTrader, testMint}},
	}
}

func TestIndexer_CreationThenTrade(t *testing.T) {
	f := newFixture(t)

	f.rpc.AddTransaction(creationTx("sig-create"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-create"}

	ev := f.waitEvent(t, notify.EventTokenCreated)
	assert.Equal(t, testMint, ev.TokenID)

	// The creation payload carries the derived program accounts.
	created, ok := ev.Payload.(TokenCreated)
	require.True(t, ok)
	assert.NotEmpty(t, created.CurveAccount)
	assert.NotEmpty(t, created.TreasuryAccount)
	assert.NotEqual(t, created.CurveAccount, created.TreasuryAccount)

	st, err := f.state.Get(context.Background(), testMint)
	require.NoError(t, err)
	assert.Equal(t, testTrader, st.Creator)

	f.rpc.AddTransaction(buyTx("sig-buy", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}

	f.waitEvent(t, notify.EventTradeApplied)
	f.waitEvent(t, notify.EventPriceUpdated)

	st, err = f.state.Get(context.Background(), testMint)
	require.NoError(t, err)
	assert.Greater(t, st.TotalSupply, 0.0)
	assert.Greater(t, st.TreasuryBalance, 0.0)

	// Candles exist for the trade's bucket.
	bucket := domain.Timeframe1m.BucketStart(1700000060000)
	c, err := f.candles.Get(context.Background(), testMint, domain.Timeframe1m, bucket)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Trades)
}

func TestIndexer_TradeForUnknownTokenAutoRegisters(t *testing.T) {
	f := newFixture(t)

	f.rpc.AddTransaction(buyTx("sig-buy", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}

	f.waitEvent(t, notify.EventTradeApplied)

	st, err := f.state.Get(context.Background(), testMint)
	require.NoError(t, err)
	assert.Greater(t, st.TotalSupply, 0.0)
}

func TestIndexer_DuplicateSignatureAppliedOnce(t *testing.T) {
	f := newFixture(t)

	f.rpc.AddTransaction(buyTx("sig-buy", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}

	f.waitEvent(t, notify.EventTradeApplied)

	// A later unique trade flushes the pipeline; if duplicates had
	// applied, supply would reflect three buys.
	f.rpc.AddTransaction(buyTx("sig-buy-2", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy-2"}
	f.waitEvent(t, notify.EventTradeApplied)

	trades, err := f.trades.GetByToken(context.Background(), testMint, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestIndexer_FailedNotificationSkipped(t *testing.T) {
	f := newFixture(t)

	f.ws.ch <- solana.LogNotification{Signature: "sig-failed", Err: "InstructionError"}

	// The stream keeps flowing past the failed transaction.
	f.rpc.AddTransaction(buyTx("sig-ok", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-ok"}
	f.waitEvent(t, notify.EventTradeApplied)

	_, err := f.trades.GetBySignature(context.Background(), "sig-failed")
	assert.Error(t, err)
}

func TestIndexer_UnrecognizedLogsSkipOneSignature(t *testing.T) {
	f := newFixture(t)

	f.rpc.AddTransaction(&solana.Transaction{
		Signature: "sig-other",
		Slot:      99,
		BlockTime: 1700000000,
		Meta: &solana.TransactionMeta{
			LogMessages: []string{"Program log: Instruction: Transfer"},
		},
		Message: &solana.TransactionMessage{AccountKeys: []string{testTrader, testMint}},
	})
	f.ws.ch <- solana.LogNotification{Signature: "sig-other"}

	f.rpc.AddTransaction(buyTx("sig-buy", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-buy"}

	f.waitEvent(t, notify.EventTradeApplied)

	trades, err := f.trades.GetByToken(context.Background(), testMint, 0)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestIndexer_GraduationTrigger(t *testing.T) {
	f := newFixture(t)

	// 600 SOL nets ~594 past the 500 SOL threshold.
	f.rpc.AddTransaction(buyTx("sig-big", "8000000 tokens for 600 SOL (fee: 6 SOL)"))
	f.ws.ch <- solana.LogNotification{Signature: "sig-big"}

	ev := f.waitEvent(t, notify.EventGraduated)
	assert.Equal(t, testMint, ev.TokenID)

	st, err := f.state.Get(context.Background(), testMint)
	require.NoError(t, err)
	assert.True(t, st.IsGraduated)
	assert.Equal(t, int32(1), f.triggers.Load())
}

func TestIndexer_PollPath(t *testing.T) {
	fees := domain.DefaultFeeSchedule()
	pricer := curve.NewPricer(domain.DefaultCurveParams(), fees)

	rpc := stub.NewRPCClient()
	trades := memory.NewTradeStore()
	stateSvc := state.New(memory.NewCurveStateStore(), trades, pricer, fees)
	publisher := notify.NewChannelPublisher(64, nil)

	rpc.AddTransaction(buyTx("sig-polled", "14000 tokens for 1 SOL (fee: 0.01 SOL)"))
	rpc.AddSignatures(testProgram, []solana.SignatureInfo{
		{Signature: "sig-polled", Slot: 101},
		{Signature: "sig-broken", Slot: 102, Err: "InstructionError"},
	})

	cfg := DefaultConfig(testProgram)
	cfg.PollInterval = 20 * time.Millisecond
	cfg.ReconcileInterval = time.Hour

	ix := New(cfg, rpc, newStubWS(), stateSvc,
		candles.NewAggregator(memory.NewCandleStore()), trades,
		WithPublisher(publisher),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ix.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-publisher.Events():
			if ev.Type == notify.EventTradeApplied {
				tr, err := trades.GetBySignature(context.Background(), "sig-polled")
				require.NoError(t, err)
				assert.Equal(t, domain.DirectionBuy, tr.Direction)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for polled trade")
		}
	}
}

// Package main runs the token launch engine: the chain indexer, the
// candle aggregator, the graduation orchestrator and the query HTTP
// surface, wired over postgres/clickhouse or in-memory stores.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"curve-engine/internal/candles"
	"curve-engine/internal/curve"
	"curve-engine/internal/domain"
	"curve-engine/internal/graduation"
	"curve-engine/internal/indexer"
	"curve-engine/internal/notify"
	"curve-engine/internal/observability"
	"curve-engine/internal/solana"
	"curve-engine/internal/state"
	"curve-engine/internal/storage"
	chstore "curve-engine/internal/storage/clickhouse"
	"curve-engine/internal/storage/memory"
	"curve-engine/internal/storage/migrations"
	pgstore "curve-engine/internal/storage/postgres"
)

// Server wires all engine components.
type Server struct {
	cfg     serverConfig
	stores  *allStores
	pricer  *curve.Pricer
	state   *state.Service
	candles *candles.Aggregator
	orch    *graduation.Orchestrator
	indexer *indexer.Indexer
	logger  *log.Logger
	started time.Time
}

type serverConfig struct {
	rpcEndpoint       string
	wsEndpoint        string
	postgresDSN       string
	clickhouseDSN     string
	useMemory         bool
	programID         string
	platformWallet    string
	pollInterval      time.Duration
	reconcileInterval time.Duration
	httpAddr          string
}

// allStores holds all storage implementations.
type allStores struct {
	curveStates   storage.CurveStateStore
	trades        storage.TradeStore
	candleStore   storage.CandleStore
	candleArchive storage.CandleArchiveStore // nil in memory mode
	gradStatuses  storage.GraduationStatusStore
	gradRecords   storage.GraduationRecordStore
}

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	programID := flag.String("program", os.Getenv("LAUNCH_PROGRAM_ID"), "Launch program ID to index")
	platformWallet := flag.String("platform-wallet", os.Getenv("PLATFORM_WALLET"), "Recipient of platform graduation allocations")
	pollInterval := flag.Duration("poll-interval", 5*time.Second, "Signature polling interval")
	reconcileInterval := flag.Duration("reconcile-interval", time.Minute, "Candle backfill/archive interval")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", ":8080", "HTTP listen address")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *programID == "" {
		logger.Fatal("--program is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	server := &Server{
		cfg: serverConfig{
			rpcEndpoint:       *rpcEndpoint,
			wsEndpoint:        *wsEndpoint,
			postgresDSN:       *postgresDSN,
			clickhouseDSN:     *clickhouseDSN,
			useMemory:         *useMemory,
			programID:         *programID,
			platformWallet:    *platformWallet,
			pollInterval:      *pollInterval,
			reconcileInterval: *reconcileInterval,
			httpAddr:          *httpAddr,
		},
		stores:  stores,
		logger:  logger,
		started: time.Now(),
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			curveStates:  memory.NewCurveStateStore(),
			trades:       memory.NewTradeStore(),
			candleStore:  memory.NewCandleStore(),
			gradStatuses: memory.NewGraduationStatusStore(),
			gradRecords:  memory.NewGraduationRecordStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	stores := &allStores{
		curveStates:   pgstore.NewCurveStateStore(pool),
		trades:        pgstore.NewTradeStore(pool),
		candleStore:   pgstore.NewCandleStore(pool),
		candleArchive: chstore.NewCandleArchiveStore(chConn),
		gradStatuses:  pgstore.NewGraduationStatusStore(pool),
		gradRecords:   pgstore.NewGraduationRecordStore(pool),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return stores, cleanup, nil
}

// Run wires the components and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	fees := domain.DefaultFeeSchedule()
	s.pricer = curve.NewPricer(domain.DefaultCurveParams(), fees)

	s.state = state.New(s.stores.curveStates, s.stores.trades, s.pricer, fees,
		state.WithLogger(log.New(os.Stdout, "", log.LstdFlags)))

	aggOpts := []candles.Option{candles.WithLogger(log.New(os.Stdout, "", log.LstdFlags))}
	if s.stores.candleArchive != nil {
		aggOpts = append(aggOpts, candles.WithArchive(s.stores.candleArchive))
	}
	s.candles = candles.NewAggregator(s.stores.candleStore, aggOpts...)

	rpc := solana.NewHTTPClient(s.cfg.rpcEndpoint)

	// Sanity-check the program account before tailing it.
	if info, err := rpc.GetAccountInfo(ctx, s.cfg.programID); err != nil {
		s.logger.Printf("Program account check failed: %v", err)
	} else if info == nil {
		s.logger.Printf("Warning: program %s not found on chain", s.cfg.programID)
	}

	burner := graduation.NewLPBurner(rpc, graduation.StubSubmitter{}, log.New(os.Stdout, "", log.LstdFlags))

	s.orch = graduation.NewOrchestrator(
		s.stores.curveStates,
		s.stores.gradStatuses,
		s.stores.gradRecords,
		graduation.NewStubProvisioner(log.New(os.Stdout, "", log.LstdFlags)),
		graduation.NewLogTransferrer(log.New(os.Stdout, "", log.LstdFlags)),
		burner,
		domain.DefaultFeeSchedule(),
		graduation.WithPlatformWallet(s.cfg.platformWallet),
	)

	ws, err := solana.NewWSClient(ctx, s.cfg.wsEndpoint, nil, log.New(os.Stdout, "", log.LstdFlags))
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	cfg := indexer.DefaultConfig(s.cfg.programID)
	cfg.PollInterval = s.cfg.pollInterval
	cfg.ReconcileInterval = s.cfg.reconcileInterval

	s.indexer = indexer.New(cfg, rpc, ws, s.state, s.candles, s.stores.trades,
		indexer.WithLogger(log.New(os.Stdout, "", log.LstdFlags)),
		indexer.WithPublisher(notify.NewLogPublisher(log.New(os.Stdout, "", log.LstdFlags))),
		indexer.WithGraduationTrigger(s.onGraduation),
	)

	go s.startHTTPServer(s.cfg.httpAddr)

	s.logger.Printf("Engine started: program %s, storage %s", s.cfg.programID, s.storageMode())
	return s.indexer.Run(ctx)
}

// onGraduation runs the full graduation flow when a trade crosses the
// threshold. Failures stay retryable through the persisted phase.
func (s *Server) onGraduation(ctx context.Context, tokenID string) {
	rec, err := s.orch.Graduate(ctx, tokenID)
	if err != nil {
		s.logger.Printf("Graduation %s: %v", tokenID, err)
		switch {
		case errors.Is(err, graduation.ErrProvisioningFailed):
			observability.RecordGraduationFailure("provisioning")
		case errors.Is(err, graduation.ErrBurnIncomplete):
			observability.RecordGraduationFailure("burn")
		default:
			observability.RecordGraduationFailure("other")
		}
		return
	}
	observability.DefaultMetrics.GraduationsCompleted.Inc()
	observability.DefaultMetrics.LPTokensBurned.Inc()
	s.logger.Printf("Token %s graduated into pool %s", tokenID, rec.PoolID)
}

func (s *Server) storageMode() string {
	if s.cfg.useMemory {
		return "memory"
	}
	return "postgres+clickhouse"
}

// startHTTPServer serves health, metrics and the query surface.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/chart", s.handleChart)
	mux.HandleFunc("/graduation-status", s.handleGraduationStatus)
	mux.HandleFunc("/token-metrics", s.handleTokenMetrics)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Storage string `json:"storage"`
	Program string `json:"program"`
	Tokens  int    `json:"tokens"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	states, err := s.state.List(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, StatusResponse{
		Status:  "running",
		Uptime:  time.Since(s.started).String(),
		Storage: s.storageMode(),
		Program: s.cfg.programID,
		Tokens:  len(states),
	})
}

// QuoteResponse is the JSON response for the /quote endpoint.
type QuoteResponse struct {
	Direction      string  `json:"direction"`
	InputAmount    float64 `json:"input_amount"`
	OutputAmount   float64 `json:"output_amount"`
	AvgPrice       float64 `json:"avg_price"`
	NewPrice       float64 `json:"new_price"`
	PriceImpactPct float64 `json:"price_impact_pct"`
	PlatformFee    float64 `json:"platform_fee"`
	CreatorFee     float64 `json:"creator_fee"`
	MinReceived    float64 `json:"min_received"`
}

// handleQuote prices a hypothetical trade. amount is SOL for buys and
// whole tokens for sells.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		httpError(w, http.StatusBadRequest, errors.New("token parameter is required"))
		return
	}

	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, errors.New("amount parameter must be a number"))
		return
	}

	direction := domain.DirectionBuy
	raw := amount * domain.LamportsPerSOL
	if strings.EqualFold(r.URL.Query().Get("direction"), "sell") {
		direction = domain.DirectionSell
		raw = amount * domain.LamportsPerToken
	}

	q, err := s.state.Quote(r.Context(), tokenID, direction, raw)
	if err != nil {
		httpError(w, quoteStatus(err), err)
		return
	}

	writeJSON(w, QuoteResponse{
		Direction:      string(q.Direction),
		InputAmount:    q.InputAmount,
		OutputAmount:   q.OutputAmount,
		AvgPrice:       q.AvgPrice,
		NewPrice:       q.NewPrice,
		PriceImpactPct: q.PriceImpactPct,
		PlatformFee:    q.PlatformFee,
		CreatorFee:     q.CreatorFee,
		MinReceived:    q.MinReceived,
	})
}

// handleChart serves aligned OHLCV arrays for one token and timeframe.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		httpError(w, http.StatusBadRequest, errors.New("token parameter is required"))
		return
	}

	tf := domain.Timeframe(r.URL.Query().Get("timeframe"))
	if tf == "" {
		tf = domain.Timeframe1m
	}

	now := time.Now().UnixMilli()
	start := queryInt(r, "start", now-24*time.Hour.Milliseconds())
	end := queryInt(r, "end", now)

	chart, err := s.candles.Query(r.Context(), tokenID, tf, start, end)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, candles.ErrInvalidTimeframe) {
			status = http.StatusBadRequest
		}
		httpError(w, status, err)
		return
	}
	writeJSON(w, chart)
}

// GraduationStatusResponse is the JSON response for /graduation-status.
type GraduationStatusResponse struct {
	TokenID     string  `json:"token_id"`
	Phase       string  `json:"phase"`
	ProgressPct float64 `json:"progress_pct"`
	PoolID      string  `json:"pool_id,omitempty"`
	LPMint      string  `json:"lp_mint,omitempty"`
	Detail      string  `json:"detail,omitempty"`
}

func (s *Server) handleGraduationStatus(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		httpError(w, http.StatusBadRequest, errors.New("token parameter is required"))
		return
	}

	st, err := s.state.Get(r.Context(), tokenID)
	if err != nil {
		httpError(w, quoteStatus(err), err)
		return
	}

	status, err := s.orch.Status(r.Context(), tokenID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, GraduationStatusResponse{
		TokenID:     tokenID,
		Phase:       string(status.Phase),
		ProgressPct: st.GraduationProgress(domain.DefaultFeeSchedule().GraduationThreshold),
		PoolID:      status.PoolID,
		LPMint:      status.LPMint,
		Detail:      status.Detail,
	})
}

// TokenMetricsResponse is the JSON response for /token-metrics.
type TokenMetricsResponse struct {
	TokenID       string  `json:"token_id"`
	PriceLamports float64 `json:"price_lamports"`
	SupplyTokens  float64 `json:"supply_tokens"`
	MarketCapSOL  float64 `json:"market_cap_sol"`
	LiquiditySOL  float64 `json:"liquidity_sol"`
	VolumeSOL     float64 `json:"volume_sol"`
	ProgressPct   float64 `json:"progress_pct"`
	IsGraduated   bool    `json:"is_graduated"`
}

func (s *Server) handleTokenMetrics(w http.ResponseWriter, r *http.Request) {
	tokenID := r.URL.Query().Get("token")
	if tokenID == "" {
		httpError(w, http.StatusBadRequest, errors.New("token parameter is required"))
		return
	}

	st, err := s.state.Get(r.Context(), tokenID)
	if err != nil {
		httpError(w, quoteStatus(err), err)
		return
	}

	writeJSON(w, TokenMetricsResponse{
		TokenID:       st.TokenID,
		PriceLamports: st.CurrentPrice,
		SupplyTokens:  st.TotalSupply / domain.LamportsPerToken,
		MarketCapSOL:  st.MarketCap() / domain.LamportsPerSOL,
		LiquiditySOL:  st.TreasuryBalance / domain.LamportsPerSOL,
		VolumeSOL:     st.TotalVolume / domain.LamportsPerSOL,
		ProgressPct:   st.GraduationProgress(domain.DefaultFeeSchedule().GraduationThreshold),
		IsGraduated:   st.IsGraduated,
	})
}

func quoteStatus(err error) int {
	switch {
	case errors.Is(err, state.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, state.ErrAlreadyGraduated):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}


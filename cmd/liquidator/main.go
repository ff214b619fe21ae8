// Command liquidator is spec.md §5's runner: it wires the intake pipeline,
// the policy gate, the executor, the analytics feedback loop, and the
// arbitrage fabric (component K) into one process, and serves the
// liveness/readiness/metrics HTTP surface gin and prometheus expose.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dimajoyti/aave-sentinel/internal/adaptive"
	"github.com/dimajoyti/aave-sentinel/internal/analytics"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/executor"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/graph"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/inventory"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/quoter"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/registry"
	"github.com/dimajoyti/aave-sentinel/internal/arbitrage/solver"
	"github.com/dimajoyti/aave-sentinel/internal/chainpool"
	"github.com/dimajoyti/aave-sentinel/internal/config"
	"github.com/dimajoyti/aave-sentinel/internal/control"
	"github.com/dimajoyti/aave-sentinel/internal/domain"
	liqexecutor "github.com/dimajoyti/aave-sentinel/internal/executor"
	"github.com/dimajoyti/aave-sentinel/internal/intake"
	"github.com/dimajoyti/aave-sentinel/internal/oracle"
	"github.com/dimajoyti/aave-sentinel/internal/policy"
	"github.com/dimajoyti/aave-sentinel/internal/simulator"
	"github.com/dimajoyti/aave-sentinel/internal/store"
	"github.com/dimajoyti/aave-sentinel/pkg/logger"
	"github.com/dimajoyti/aave-sentinel/pkg/redis"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	log := logger.New("liquidator")
	zlog, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to build zap logger", "error", err)
	}
	defer zlog.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewClient(&redis.Config{
			Addresses: []string{cfg.Redis.Addr},
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("failed to connect to redis", "error", err)
		}
	}

	pool := chainpool.New(cfg.Chains, log)
	oracleCache := oracle.New(pool, log)
	sim := simulator.New(oracleCache, pool, log)
	gate := policy.New(oracleCache, pool, sim, log)
	throttle := control.New(redisClient, log)
	killSwitch := control.NewKillSwitch(cfg.Control.KillSwitchFile, cfg.Control.KillSwitchEnvVar)
	sessionCaps := control.NewSessionCaps(cfg.Control.MaxSessionExecutions, cfg.Control.MaxSessionNotionalUSD)

	st, err := store.Open(store.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, log)
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	defer st.Close()

	adaptiveModel := adaptive.New(cfg.AdaptiveRemoteURL, log)

	var chainIDs []uint64
	for _, c := range cfg.Chains {
		if c.Enabled {
			chainIDs = append(chainIDs, c.ChainID)
		}
	}
	analyticsLoop := analytics.New(st, adaptiveModel, chainIDs, time.Duration(cfg.Analysis.PollIntervalMs)*time.Millisecond, log)
	go analyticsLoop.Run(ctx)

	signerKeyHex := os.Getenv("LIQUIDATOR_SIGNER_KEY")
	var signer *liqexecutor.Signer
	if signerKeyHex != "" {
		signer, err = liqexecutor.NewSigner(signerKeyHex)
		if err != nil {
			log.Fatal("failed to load signer key", "error", err)
		}
	} else if !cfg.Risk.DryRun {
		log.Fatal("LIQUIDATOR_SIGNER_KEY is required outside dry-run mode")
	}

	var liqExecutor *liqexecutor.Executor
	if signer != nil {
		liqExecutor = liqexecutor.New(pool, oracleCache, redisClient, signer, log, func(msg string) {
			log.Error("fail-rate alert", "message", msg)
		})
	}

	queue := intake.NewQueue(intake.QueueDepth)
	dedup := intake.NewDedup()
	for _, chain := range cfg.Chains {
		if !chain.Enabled {
			continue
		}
		chain := chain
		if endpoint, ok := cfg.SubgraphEndpoints[chain.ChainID]; ok && endpoint != "" {
			poller := intake.NewSubgraphPoller(chain.ChainID, endpoint, queue, dedup, log)
			go poller.Run(ctx)

			feeds := []string{chain.EthUsdFeedAddress, chain.BtcUsdFeedAddress}
			refetch := intake.RefetchFuncs{
				Borrower:  func(rctx context.Context, _ string) { _ = poller.PollNow(rctx) },
				ChainWide: func(rctx context.Context) { _ = poller.PollNow(rctx) },
			}
			watcher := intake.NewRealtimeWatcher(chain.ChainID, pool, oracleCache, chain.PoolAddressesProvider, feeds, refetch, log)
			go watcher.Run(ctx)
		}
	}
	go runDedupSweeper(ctx, dedup)

	for i := 0; i < liquidationWorkerCount; i++ {
		go runLiquidationWorker(ctx, queue, cfg, pool, gate, throttle, killSwitch, sessionCaps, liqExecutor, st, log)
	}

	if len(cfg.Arbitrage.Pairs) > 0 {
		runArbitrageFabric(ctx, cfg, pool, oracleCache, throttle, signer, redisClient, st, log)
	}

	router := buildRouter(zlog, st)
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("http surface listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	drainTicker := time.NewTicker(5 * time.Second)
	defer drainTicker.Stop()
waitForShutdown:
	for {
		select {
		case <-quit:
			log.Info("shutdown signal received, draining")
			break waitForShutdown
		case <-drainTicker.C:
			if killSwitch.Tripped() {
				log.Info("kill switch tripped, draining")
				break waitForShutdown
			}
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", "error", err)
	}
	log.Info("liquidator stopped")
}

// liquidationWorkerCount is the number of concurrent consumers draining the
// intake queue into the policy gate; spec.md §5 names no specific figure,
// so this follows the teacher's small-fixed-pool convention for bounded
// per-process concurrency.
const liquidationWorkerCount = 4

func runDedupSweeper(ctx context.Context, dedup *intake.Dedup) {
	ticker := time.NewTicker(intake.DedupWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dedup.Sweep(time.Now())
		}
	}
}

func runLiquidationWorker(ctx context.Context, queue *intake.Queue, cfg *config.Config, pool *chainpool.Pool, gate *policy.Gate, throttle *control.Throttle, killSwitch *control.KillSwitch, sessionCaps *control.SessionCaps, liqExecutor *liqexecutor.Executor, st *store.Store, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := queue.Pop()
		if !ok {
			time.Sleep(50 * time.Millisecond)
			continue
		}
		cand, ok := item.(domain.Candidate)
		if !ok {
			continue
		}

		if killSwitch.Tripped() {
			continue
		}

		processCandidate(ctx, cand, cfg, pool, gate, throttle, sessionCaps, liqExecutor, st, log)
	}
}

func processCandidate(ctx context.Context, cand domain.Candidate, cfg *config.Config, pool *chainpool.Pool, gate *policy.Gate, throttle *control.Throttle, sessionCaps *control.SessionCaps, liqExecutor *liqexecutor.Executor, st *store.Store, log *logger.Logger) {
	chain, ok := cfg.ChainByID(cand.ChainID)
	if !ok || !chain.Enabled {
		return
	}
	market, ok := cfg.MarketFor(cand.ChainID, cand.Debt.Symbol, cand.Collateral.Symbol)
	if !ok {
		return
	}
	assetPolicy, hasPolicy := cfg.PolicyFor(cand.Debt.Symbol)

	limit := cfg.Risk.MaxAttemptsPerBorrowerHr
	allowed, err := throttle.BorrowerAllowed(ctx, cand.ChainID, cand.Borrower, limit)
	if err != nil {
		log.Warn("borrower throttle check failed", "error", err)
	} else if !allowed {
		recordRejection(ctx, st, cand, policy.Rejection{Reason: "throttled"}, log)
		return
	}

	adaptiveResult := domain.AdaptiveResult{HealthFactorMax: cfg.Risk.HealthFactorMax, GapCapBps: 0}

	plan, rejection, err := gate.Evaluate(ctx, policy.Input{
		Candidate: cand,
		Chain:     chain,
		Market:    market,
		Policy:    assetPolicy,
		HasPolicy: hasPolicy,
		Risk:      cfg.Risk,
		Adaptive:  adaptiveResult,
		CallCtx: simulator.CallContext{
			Contract:    chain.ExecutorContract,
			Executor:    chain.ExecutorContract,
			Beneficiary: cfg.Beneficiary,
		},
	})
	if err != nil {
		log.Warn("gate evaluation failed", "error", err)
		return
	}
	if rejection != nil {
		recordRejection(ctx, st, cand, *rejection, log)
		return
	}
	if plan == nil {
		return
	}

	if cfg.Risk.DryRun || liqExecutor == nil {
		recordAttempt(ctx, st, cand, domain.StatusDryRun, "", domain.ExecutionDetails{Mode: string(plan.Mode)}, log)
		return
	}
	if !sessionCaps.Allow(plan.RepayUSD) {
		log.Info("session caps exhausted, skipping plan", "borrower", cand.Borrower)
		return
	}

	result, execErr := liqExecutor.Execute(ctx, plan, chain, cfg.Risk)
	status := domain.StatusSent
	if execErr != nil {
		status = domain.StatusError
	}
	details := domain.ExecutionDetails{}
	txHash := ""
	if result != nil {
		txHash = result.TxHash
		details = domain.ExecutionDetails{TxHash: result.TxHash, Mode: string(result.Mode), ErrorClass: result.ErrorClass}
	}
	recordAttempt(ctx, st, cand, status, txHash, details, log)
}

func recordRejection(ctx context.Context, st *store.Store, cand domain.Candidate, rej policy.Rejection, log *logger.Logger) {
	row := domain.AttemptRow{
		ChainID:  cand.ChainID,
		Borrower: cand.Borrower,
		Status:   domain.StatusPolicySkip,
		Reason:   string(rej.Reason),
		Details:  domain.AttemptDetails{Kind: "rejection", Rejection: &domain.RejectionDetails{Reason: string(rej.Reason), Detail: rej.Detail}},
	}
	if _, err := st.InsertAttempt(ctx, row); err != nil {
		log.Warn("failed to persist rejection", "error", err)
	}
}

func recordAttempt(ctx context.Context, st *store.Store, cand domain.Candidate, status domain.AttemptStatus, txHash string, details domain.ExecutionDetails, log *logger.Logger) {
	row := domain.AttemptRow{
		ChainID:  cand.ChainID,
		Borrower: cand.Borrower,
		Status:   status,
		TxHash:   txHash,
		Details:  domain.AttemptDetails{Kind: "execution", Execution: &details},
	}
	if _, err := st.InsertAttempt(ctx, row); err != nil {
		log.Warn("failed to persist attempt", "error", err)
	}
}

func runArbitrageFabric(ctx context.Context, cfg *config.Config, pool *chainpool.Pool, oracleCache *oracle.Cache, throttle *control.Throttle, signer *liqexecutor.Signer, redisClient redis.Client, st *store.Store, log *logger.Logger) {
	fabricLog := log.Named("fabric")

	reg := registry.New(pool, fabricLog)
	resolved := reg.Resolve(ctx, cfg.Arbitrage.Pairs)
	if len(resolved) == 0 {
		fabricLog.Info("no viable arbitrage pairs resolved, fabric idle")
		return
	}

	quoteInterval := time.Duration(cfg.Arbitrage.QuoteIntervalMs) * time.Millisecond
	if quoteInterval <= 0 {
		quoteInterval = 2 * time.Second
	}

	mesh := quoter.New(pool, fabricLog)
	priceGraph := graph.New(mesh, quoteInterval, fabricLog)
	go priceGraph.Run(ctx, resolved)

	fabricSolver := solver.New(mesh, priceGraph, oracleCache, pool, throttle, fabricLog)
	inventoryManager := inventory.New(pool, cfg.InventoryFloats, fabricLog)
	go drainBridgeIntents(ctx, inventoryManager, fabricLog)

	var fabricExecutor *executor.Executor
	if signer != nil {
		nonceLock := liqexecutor.NewNonceLock(redisClient, fabricLog)
		fabricExecutor = executor.New(pool, signer, nonceLock, inventoryManager, fabricLog)
	}

	ticker := time.NewTicker(quoteInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				solveAndExecutePairs(ctx, cfg, resolved, fabricSolver, fabricExecutor, st, fabricLog)
			}
		}
	}()
}

func solveAndExecutePairs(ctx context.Context, cfg *config.Config, pairs []domain.ResolvedPair, fabricSolver *solver.Solver, fabricExecutor *executor.Executor, st *store.Store, log *logger.Logger) {
	for _, pair := range pairs {
		chain, ok := cfg.ChainByID(pair.ChainID)
		if !ok || !chain.Enabled {
			continue
		}

		edges, err := fabricSolver.Solve(ctx, chain, pair, cfg.Arbitrage.ThrottleLimit, cfg.Arbitrage.MinNetUSD, cfg.Arbitrage.MinPnlMultiple)
		if err != nil {
			log.Warn("solver failed for pair", "pairId", pair.PairID, "error", err)
			continue
		}

		for _, edge := range edges {
			recordFabricAttempt(ctx, st, pair, edge, domain.FabricStatusSkipped, "", log)

			if cfg.Risk.DryRun || fabricExecutor == nil {
				continue
			}

			slippageBps := pair.MaxSlippageBps
			if slippageBps == 0 {
				slippageBps = cfg.Arbitrage.MaxSlippageBps
			}
			result, err := fabricExecutor.Execute(ctx, chain, pair, edge, slippageBps)
			status := domain.FabricStatusSent
			txHash := ""
			if err != nil {
				status = domain.FabricStatusError
				log.Warn("fabric execute failed for pair", "pairId", pair.PairID, "error", err)
			} else if result != nil {
				txHash = result.TxHash
			}
			recordFabricAttempt(ctx, st, pair, edge, status, txHash, log)
		}
	}
}

func recordFabricAttempt(ctx context.Context, st *store.Store, pair domain.ResolvedPair, edge domain.QuoteEdge, status domain.FabricAttemptStatus, txHash string, log *logger.Logger) {
	row := domain.FabricAttemptRow{
		ChainID:  pair.ChainID,
		PairID:   pair.PairID,
		Source:   edge.Source,
		Status:   status,
		TxHash:   txHash,
		NetUSD:   edge.EstNetUSD,
		Metadata: edge.Metadata,
	}
	if _, err := st.InsertFabricAttempt(ctx, row); err != nil {
		log.Warn("failed to persist fabric attempt", "error", err)
	}
}

func drainBridgeIntents(ctx context.Context, mgr *inventory.Manager, log *logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case intent, ok := <-mgr.Events():
			if !ok {
				return
			}
			log.Warn("bridge intent",
				"chainId", intent.ChainID, "token", intent.Token, "priority", intent.Priority,
				"reason", intent.Reason, "balance", intent.Balance, "required", intent.Required, "float", intent.Float)
		}
	}
}

func buildRouter(zlog *zap.Logger, st *store.Store) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginZapLogger(zlog), gin.Recovery())

	router.GET("/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not-ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// ginZapLogger is a minimal request-log middleware, the one home this tree
// gives go.uber.org/zap now that pkg/logger covers every other call site.
func ginZapLogger(zlog *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zlog.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

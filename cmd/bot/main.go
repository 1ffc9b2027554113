// Command bot runs the Signal-to-Execution Pipeline: ingress, the
// Engine Loop, the Recovery Sweeper, and the health checker, all
// wired against one ledger database and one wallet.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/chimera-labs/chimera-operator/internal/aggregator"
	"github.com/chimera-labs/chimera-operator/internal/blockchain"
	"github.com/chimera-labs/chimera-operator/internal/breaker"
	"github.com/chimera-labs/chimera-operator/internal/cache"
	"github.com/chimera-labs/chimera-operator/internal/config"
	"github.com/chimera-labs/chimera-operator/internal/dex"
	"github.com/chimera-labs/chimera-operator/internal/engine"
	"github.com/chimera-labs/chimera-operator/internal/exitdetector"
	"github.com/chimera-labs/chimera-operator/internal/health"
	"github.com/chimera-labs/chimera-operator/internal/jupiter"
	"github.com/chimera-labs/chimera-operator/internal/ledger"
	"github.com/chimera-labs/chimera-operator/internal/queue"
	"github.com/chimera-labs/chimera-operator/internal/recovery"
	signalpkg "github.com/chimera-labs/chimera-operator/internal/signal"
	"github.com/chimera-labs/chimera-operator/internal/storage"
	"github.com/chimera-labs/chimera-operator/internal/tokensafety"
	"github.com/chimera-labs/chimera-operator/internal/trading"
	"github.com/chimera-labs/chimera-operator/internal/tui"
	"github.com/chimera-labs/chimera-operator/internal/vault"
	"github.com/chimera-labs/chimera-operator/internal/walletperf"
	wsclient "github.com/chimera-labs/chimera-operator/internal/websocket"
)

func main() {
	setupLogger()
	log.Info().Msg("chimera-operator starting")

	cfg, err := config.NewManager(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	secrets, err := vault.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load secrets")
	}

	db, err := storage.Open(cfg.Get().Storage.SQLitePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger database")
	}
	defer db.Close()

	wallet, err := blockchain.NewWalletFromKey(secrets.WalletPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load wallet")
	}
	log.Info().Str("address", wallet.Address()).Msg("wallet loaded")

	rpc := blockchain.NewRPCClient(cfg.GetShyftRPCURL(), cfg.GetFallbackRPCURL(), secrets.RPCAPIKey)

	blockhashCache := blockchain.NewBlockhashCache(rpc, cfg.GetBlockhashRefresh(), time.Duration(cfg.Get().Blockchain.BlockhashTTLSeconds)*time.Second)
	if err := blockhashCache.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start blockhash cache")
	}
	defer blockhashCache.Stop()

	balanceTracker := blockchain.NewBalanceTracker(wallet, rpc)
	if err := balanceTracker.Refresh(context.Background()); err != nil {
		log.Warn().Err(err).Msg("initial balance refresh failed")
	}
	log.Info().Float64("balance_sol", balanceTracker.BalanceSOL()).Msg("wallet balance")

	jupCfg := cfg.Get().Jupiter
	jupiterClient := jupiter.NewClient(jupCfg.QuoteAPIURL, jupCfg.SlippageBps, time.Duration(jupCfg.TimeoutSeconds)*time.Second)
	jupiterProvider := dex.NewJupiterProvider(jupiterClient, decimal.NewFromFloat(0.0))
	router := dex.NewRouter(jupiterProvider, jupiterProvider)

	l := ledger.New(db)
	q := queue.New(cfg.GetQueueConfig())
	b := breaker.New(cfg.GetBreakerConfig(), db)
	agg := aggregator.New(
		time.Duration(cfg.Get().Consensus.WindowSeconds)*time.Second,
		cfg.Get().Consensus.MinLeaders,
	)
	priceCache := cache.NewPriceCache()
	volumeCache := cache.NewVolumeCache()

	tsCfg := cfg.Get().TokenSafety
	tokenSafetyCache, err := cache.NewTokenSafetyCache(tsCfg.CacheCapacity, time.Duration(tsCfg.CacheTTLSeconds)*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init token safety cache")
	}
	safetyValidator := tokensafety.New(rpc, dexSimulator{router: router}, tokenSafetyCache, tsCfg.StableMints)

	executor := trading.NewExecutor(cfg.GetExecutorConfig(), wallet, rpc, router, blockhashCache, l, b, agg)
	executor.SetPriceCache(priceCache)
	executor.SetVolumeCache(volumeCache)

	loop := engine.New(cfg.GetEngineConfig(), q, b, l, safetyValidator, priceCache, agg, executor)
	loop.SetVolumeCache(volumeCache)

	perfTracker := walletperf.New(db)
	if err := perfTracker.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("failed to init wallet performance table")
	}
	loop.SetPerfTracker(perfTracker)

	startWalletMonitor(cfg.GetShyftWSURL(), wallet.Address(), balanceTracker)

	sweeper := recovery.New(cfg.GetRecoveryConfig(), db, rpc, l)

	detector := exitdetector.New()
	_ = detector // constructed only: nothing in this binary feeds it observations or reads its exit signals.

	telegramCfg := cfg.Get().Telegram
	ingressHandler := signalpkg.NewHandler(q, l)
	server := signalpkg.NewServer(telegramCfg.ListenHost, telegramCfg.ListenPort, ingressHandler)

	checker := health.NewChecker(cfg.GetShyftRPCURL(), "http://"+telegramCfg.ListenHost+":"+portString(telegramCfg.ListenPort), db, q, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker.Start(ctx)
	go sweeper.Run(ctx)
	go loop.Run(ctx)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("ingress server failed")
		}
	}()

	log.Info().
		Str("host", telegramCfg.ListenHost).
		Int("port", telegramCfg.ListenPort).
		Msg("ingress server started")

	if os.Getenv("HEADLESS") == "1" {
		runHeadless(cancel)
	} else {
		runWithTUI(l, q, b)
		cancel()
	}

	log.Info().Msg("shutting down")
	q.Close()
	server.Shutdown()
}

func runHeadless(cancel context.CancelFunc) {
	defer cancel()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

// runWithTUI runs the read-only operator dashboard in the foreground;
// quitting the dashboard (q / ctrl+c) triggers shutdown the same as
// SIGINT/SIGTERM would in headless mode.
func runWithTUI(l *ledger.Ledger, q *queue.Queue, b *breaker.Breaker) {
	p := tea.NewProgram(tui.New(l, q, b))
	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("tui exited with error")
	}
}

// dexSimulator adapts the dex.Router's best-quote lookup into the
// tokensafety.SwapSimulator interface: a quote that succeeds implies a
// live route; price impact stands in for the liquidity signal absent a
// dedicated simulateTransaction integration.
type dexSimulator struct {
	router *dex.Router
}

func (s dexSimulator) SimulateSwap(ctx context.Context, mint string) (tokensafety.SimResult, error) {
	const solMint = "So11111111111111111111111111111111111111112"
	const probeLamports = 100_000_000 // 0.1 SOL probe size

	quote, err := s.router.Best(ctx, solMint, mint, probeLamports)
	if err != nil {
		return tokensafety.SimResult{}, err
	}

	impact, _ := quote.PriceImpactPct.Float64()
	liquidityUSD := 0.0
	if impact > 0 {
		liquidityUSD = (0.1 * 150.0) / (impact / 100.0) // probe SOL size * rough SOL/USD / impact fraction
	}
	return tokensafety.SimResult{LiquidityUSD: liquidityUSD}, nil
}

// startWalletMonitor opens the Solana websocket subscription feed and
// pushes wallet balance updates into balanceTracker in real time,
// instead of relying on the one RPC refresh made at startup. Failure to
// connect is non-fatal: the balance tracker keeps the value from that
// startup refresh, and the Pre-Validator's price cache still gets fed by
// DEX quotes taken during execution.
func startWalletMonitor(wsURL, walletAddr string, balanceTracker *blockchain.BalanceTracker) {
	if wsURL == "" {
		return
	}

	client := wsclient.NewClient(wsURL, 2*time.Second, 30*time.Second)
	if err := client.Connect(); err != nil {
		log.Warn().Err(err).Msg("websocket connect failed, continuing without push updates")
		return
	}

	monitor := wsclient.NewWalletMonitor(client, walletAddr)
	monitor.OnBalanceUpdate(func(update wsclient.BalanceUpdate) {
		balanceTracker.SetBalanceLamports(update.Lamports)
	})
	if err := monitor.StartWalletSubscription(); err != nil {
		log.Warn().Err(err).Msg("wallet balance subscription failed")
	}
}

func configPath() string {
	if p := os.Getenv("CHIMERA_CONFIG"); p != "" {
		return p
	}
	return "config/config.yaml"
}

func portString(port int) string {
	if port == 0 {
		return "8080"
	}
	return strconv.Itoa(port)
}

func setupLogger() {
	log.Logger = zerolog.New(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"},
	).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "1" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

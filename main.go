package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"kis-trading-bot/config"
	"kis-trading-bot/internal/ai/llm"
	"kis-trading-bot/internal/api"
	"kis-trading-bot/internal/database"
	"kis-trading-bot/internal/fx"
	"kis-trading-bot/internal/kis"
	"kis-trading-bot/internal/logging"
	"kis-trading-bot/internal/market"
	"kis-trading-bot/internal/marketdata"
	"kis-trading-bot/internal/notification"
	"kis-trading-bot/internal/scanner"
	"kis-trading-bot/internal/settings"
	"kis-trading-bot/internal/trader"
	"kis-trading-bot/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	logging.SetDefault(logger)
	logger.Info("starting trading engine")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Broker credentials: Vault when enabled, config values otherwise
	vaultClient, err := vault.NewClient(cfg.Vault)
	if err != nil {
		logger.Fatal("vault client init failed", "error", err)
	}
	if err := vaultClient.Health(ctx); err != nil {
		logger.Fatal("vault health check failed", "error", err)
	}
	creds, err := vaultClient.BrokerCredentials(ctx, cfg.KIS)
	if err != nil {
		logger.Fatal("broker credentials unavailable", "error", err)
	}

	broker := kis.NewClient(
		cfg.KIS.BaseURL, creds.AppKey, creds.AppSecret,
		creds.AccountNo, cfg.KIS.AccountProductCode, cfg.KIS.Timeout,
	)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to in-memory caches", "error", err)
			rdb = nil
		}
		pingCancel()
	}

	yahoo := marketdata.NewYahooClient()
	fxService := fx.NewService(yahoo, rdb)

	llmClient, err := llm.NewClient(cfg.AI)
	if err != nil {
		logger.Fatal("AI client init failed", "error", err)
	}
	oracle := llm.NewOracle(llmClient)

	// The database is optional: without it the engine still trades but
	// loses trade history, cycle cadence restore, and persisted toggles.
	var repo *database.Repository
	if cfg.Database.Host != "" {
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("database connection failed", "error", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("database migration failed", "error", err)
		}
		repo = database.NewRepository(db)
	} else {
		logger.Warn("no database configured, running without persistence")
	}

	gates := buildSettings(ctx, repo, logger)

	notifier := notification.NewManager(cfg.Notification.Enabled)
	notifier.AddChannel(notification.NewDiscordChannel(cfg.Notification.DiscordWebhookURL))
	notifier.AddChannel(notification.NewTelegramChannel(cfg.Notification.TelegramBotToken, cfg.Notification.TelegramChatID))

	clock, err := market.NewClock()
	if err != nil {
		logger.Fatal("market clock init failed", "error", err)
	}

	book := trader.NewBook(cfg.Trading.SwingAllocation, cfg.Trading.DayAllocation)
	rules := trader.ExitRules{
		HardStopPct:         cfg.Trading.HardStopPct,
		TrailingActivatePct: cfg.Trading.TrailingActivatePct,
		TrailingOffsetPct:   cfg.Trading.TrailingOffsetPct,
	}

	trackerCfg := trader.TrackerConfig{
		Book:              book,
		Broker:            broker,
		Oracle:            oracle,
		Clock:             clock,
		Gates:             gates,
		Notifier:          notifier,
		Rules:             rules,
		Tick:              cfg.Trading.CandidateTick,
		DeviationLimitPct: cfg.Trading.PriceDeviationLimit,
	}
	holdingsCfg := trader.HoldingsConfig{
		Book:     book,
		Broker:   broker,
		Oracle:   oracle,
		Gates:    gates,
		Notifier: notifier,
		Tick:     cfg.Trading.HoldingsTick,
	}
	if repo != nil {
		trackerCfg.Recorder = repo
		holdingsCfg.Recorder = repo
		holdingsCfg.Stats = repo
	}
	candidateTracker := trader.NewCandidateTracker(trackerCfg)
	holdingsTracker := trader.NewHoldingsTracker(holdingsCfg)
	reaper := trader.NewOrderReaper(book, broker, cfg.Trading.ReaperInterval, cfg.Trading.OrderTimeout)

	engineCfg := scanner.EngineConfig{
		Clock:    clock,
		Selector: scanner.NewTargetSelector(broker, yahoo, fxService, gates, cfg.Trading.Watchlist, cfg.Trading.MaxTargetsPerMarket),
		Pipeline: scanner.NewPipeline(broker, yahoo, oracle, fxService, scanner.PipelineConfig{
			BatchSize:    cfg.Trading.BatchSize,
			BatchDelay:   cfg.Trading.BatchDelay,
			WorkerCount:  cfg.Trading.WorkerCount,
			BuyThreshold: cfg.Trading.BuyScoreThreshold,
		}),
		Book:       book,
		Broker:     broker,
		Rates:      fxService,
		Gates:      gates,
		Headlines:  marketdata.NewNewsClient(),
		Sentiments: oracle,
		Interval:   cfg.Trading.CycleInterval,
	}
	if repo != nil {
		engineCfg.Cycles = repo
		engineCfg.Hints = repo
	}
	engine := scanner.NewEngine(engineCfg)

	var history api.TradeHistory
	if repo != nil {
		history = repo
	}
	server := api.NewServer(cfg.Server, engine, book, clock, gates, history)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		logger.Info("started", "component", name)
	}
	run("scan-engine", engine.Run)
	run("candidate-tracker", candidateTracker.Run)
	run("holdings-tracker", holdingsTracker.Run)
	run("order-reaper", reaper.Run)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			logger.Error("control API failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	engine.Stop()
	wg.Wait()
	logger.Info("shutdown complete")
}

// buildSettings seeds the runtime toggles from the database when one
// is available and mirrors later changes back to it.
func buildSettings(ctx context.Context, repo *database.Repository, logger *logging.Logger) settings.Store {
	if repo == nil {
		return settings.NewMemory(nil)
	}

	persisted, err := repo.LoadSettings(ctx)
	if err != nil {
		logger.Warn("loading persisted settings failed, using defaults", "error", err)
		persisted = nil
	}
	store := settings.NewMemory(persisted)
	store.OnChange(repo.SaveSetting)
	return store
}

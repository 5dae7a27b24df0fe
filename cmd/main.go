// Package main is the entry point for the auto-trading service.
// It wires the safety evaluator, the sniper and copy-trade engines, the policy
// and log stores, notifications and the HTTP API into one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solana-sniper-bot/autotrader/internal/api"
	"github.com/solana-sniper-bot/autotrader/internal/chain"
	"github.com/solana-sniper-bot/autotrader/internal/config"
	"github.com/solana-sniper-bot/autotrader/internal/copytrade"
	"github.com/solana-sniper-bot/autotrader/internal/events"
	"github.com/solana-sniper-bot/autotrader/internal/executor"
	"github.com/solana-sniper-bot/autotrader/internal/feeds"
	"github.com/solana-sniper-bot/autotrader/internal/notify"
	"github.com/solana-sniper-bot/autotrader/internal/observability"
	"github.com/solana-sniper-bot/autotrader/internal/policy"
	"github.com/solana-sniper-bot/autotrader/internal/positions"
	"github.com/solana-sniper-bot/autotrader/internal/safety"
	"github.com/solana-sniper-bot/autotrader/internal/sniper"
	"github.com/solana-sniper-bot/autotrader/internal/storage/postgres"
	"github.com/solana-sniper-bot/autotrader/internal/tradelog"
	"github.com/solana-sniper-bot/autotrader/internal/utils"
)

// Build information (injected at compile time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const (
	eventBuffer    = 256
	janitorEvery   = time.Minute
	startupTimeout = 30 * time.Second
)

// Application holds the main application components
type Application struct {
	Config *config.Config
	Logger *utils.Logger
	Server *http.Server

	Sniper    *sniper.Engine
	CopyTrade *copytrade.Engine
	Safety    *safety.Evaluator
	Notifier  *notify.Service
	Bus       *events.Bus
	Hub       *events.Hub

	db             *postgres.Store
	shutdownTracer func(context.Context) error
}

func main() {
	printBanner()

	app, err := initializeApplication()
	if err != nil {
		fmt.Printf("❌ Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.Logger.Error("Failed to start application", "error", err)
		os.Exit(1)
	}
}

// initializeApplication loads configuration and builds every component.
func initializeApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("🚀 Initializing auto-trader",
		"version", Version,
		"build_time", BuildTime,
		"git_commit", GitCommit,
	)

	if err := utils.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	app := &Application{Config: cfg, Logger: logger}

	app.shutdownTracer, err = observability.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Storage
	var logs tradelog.Store = tradelog.NewMemoryStore()
	policyOpts := []policy.Option{policy.WithLogger(logger)}
	checks := map[string]api.ReadinessCheck{}
	if cfg.Database.Enabled {
		app.db, err = postgres.Open(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if cfg.Database.AutoMigrate {
			if err := app.db.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}
		logs = app.db
		policyOpts = append(policyOpts, policy.WithPersister(app.db))
		checks["database"] = app.db.Ping
	} else {
		logger.Warn("Database disabled, policies and logs are kept in memory only")
	}

	policies := policy.NewStore(policyOpts...)
	if err := policies.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}

	// Chain and safety
	rpcClient := chain.NewClient(cfg.Solana)
	checks["solana"] = rpcClient.Health
	quotes := chain.NewQuoteClient(cfg.Safety.QuoteURL, cfg.Safety.CheckTimeout)
	signals := chain.NewSignals(rpcClient, quotes, cfg.Solana.ReferenceMint, cfg.Safety.ProbeAmount, cfg.Solana.LockerAddresses)

	app.Safety = safety.New(signals,
		safety.WithCacheTTL(cfg.Safety.CacheTTL),
		safety.WithCheckTimeout(cfg.Safety.CheckTimeout),
		safety.WithHighTaxThreshold(cfg.Safety.HighTaxPercent),
		safety.WithBadActors(cfg.Safety.BadActorWallets),
		safety.WithLogger(logger),
		safety.WithRecorder(metrics),
	)

	// Execution
	var exec executor.Executor
	switch cfg.Executor.Mode {
	case "http":
		exec = executor.NewHTTPExecutor(cfg.Executor.Endpoint, cfg.Executor.APIKey, cfg.Executor.Timeout)
	default:
		logger.Warn("Executor running in dry-run mode, no swaps reach the chain")
		exec = executor.NewDryRun(cfg.Solana.ReferenceMint, nil)
	}
	exec = executor.NewRateLimited(exec, cfg.Executor.RateLimit, cfg.Executor.Burst)

	// Notifications and events
	channels := []notify.Channel{notify.NewLogChannel(logger)}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.DefaultChatID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telegram: %w", err)
		}
		channels = append(channels, tg)
	}
	app.Notifier = notify.NewService(
		notify.WithChannels(channels...),
		notify.WithLogger(logger),
		notify.WithRecorder(metrics),
	)
	app.Bus = events.NewBus()
	app.Hub = events.NewHub(logger, cfg.Security.CORSOrigins)

	book := positions.NewBook()

	// Engines
	app.Sniper, err = sniper.New(sniper.Deps{
		Candidates: feeds.NewHTTPCandidateSource(cfg.Sniper.CandidateFeedURL, feeds.WithLogger(logger)),
		Safety:     app.Safety,
		Policies:   policies,
		Logs:       logs,
		Executor:   exec,
		Notifier:   app.Notifier,
		Publisher:  app.Bus,
		Positions:  book,
		Logger:     logger,
		Metrics:    metrics,
	}, sniper.Config{
		ScanInterval:  cfg.Sniper.ScanInterval,
		Workers:       cfg.Sniper.Workers,
		ReferenceMint: cfg.Solana.ReferenceMint,
		Wallets:       cfg.Executor.UserWallets,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sniper engine: %w", err)
	}

	app.CopyTrade, err = copytrade.New(copytrade.Deps{
		Activity:  chain.NewActivityFeed(rpcClient, cfg.Solana.ReferenceMint, logger),
		Safety:    app.Safety,
		Policies:  policies,
		Logs:      logs,
		Executor:  exec,
		Positions: book,
		Notifier:  app.Notifier,
		Publisher: app.Bus,
		Logger:    logger,
		Metrics:   metrics,
	}, copytrade.Config{
		ScanInterval:     cfg.CopyTrade.ScanInterval,
		ActivityLimit:    cfg.CopyTrade.ActivityLimit,
		Workers:          cfg.CopyTrade.Workers,
		ReferenceMint:    cfg.Solana.ReferenceMint,
		Wallets:          cfg.Executor.UserWallets,
		VerifiedMinScore: cfg.Safety.VerifiedMinScore,
		HighTaxPercent:   cfg.Safety.HighTaxPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create copy-trade engine: %w", err)
	}

	leaders := copytrade.NewRegistry()
	if cfg.CopyTrade.LeadersFile != "" {
		leaders, err = copytrade.LoadRegistry(cfg.CopyTrade.LeadersFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load leader registry: %w", err)
		}
		logger.Info("Leader registry loaded", "leaders", leaders.Len())
	}

	// HTTP
	container := &api.Container{
		Config:    cfg,
		Logger:    logger,
		Policies:  policies,
		Logs:      logs,
		Sniper:    app.Sniper,
		Leaders:   leaders,
		Safety:    app.Safety,
		Alerts:    app.Notifier,
		Events:    app.Hub,
		Metrics:   metrics.Handler(),
		Checks:    checks,
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}

	app.Server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        api.NewRouter(container),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return app, nil
}

// Start runs the engines and the HTTP server until a shutdown signal arrives.
func (app *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stream, unsubscribe := app.Bus.Subscribe(eventBuffer)
	defer unsubscribe()
	go app.Hub.Run(ctx, stream)
	go app.Safety.RunJanitor(ctx, janitorEvery)

	if app.Config.Sniper.Enabled {
		if err := app.Sniper.Start(ctx); err != nil {
			return fmt.Errorf("start sniper engine: %w", err)
		}
		app.Logger.Info("🎯 Sniper engine started", "interval", app.Config.Sniper.ScanInterval)
	}
	if app.Config.CopyTrade.Enabled {
		if err := app.CopyTrade.Start(ctx); err != nil {
			return fmt.Errorf("start copy-trade engine: %w", err)
		}
		app.Logger.Info("👥 Copy-trade engine started", "interval", app.Config.CopyTrade.ScanInterval)
	}

	serverErrChan := make(chan error, 1)
	go func() {
		app.Logger.Info("🌐 Starting HTTP server",
			"address", app.Server.Addr,
			"environment", app.Config.Environment,
		)

		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case sig := <-sigChan:
		app.Logger.Info("🛑 Received shutdown signal", "signal", sig.String())
		return app.gracefulShutdown(ctx)
	case err := <-serverErrChan:
		app.Logger.Error("❌ Server error", "error", err)
		_ = app.gracefulShutdown(ctx)
		return err
	}
}

// gracefulShutdown stops intake first, then drains in-flight work, then
// releases the server and storage.
func (app *Application) gracefulShutdown(ctx context.Context) error {
	app.Logger.Info("🔄 Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.Server.ShutdownTimeout)
	defer cancel()

	app.Sniper.Stop()
	app.CopyTrade.Stop()
	drained := make(chan struct{})
	go func() {
		app.Sniper.Wait()
		app.CopyTrade.Wait()
		app.Notifier.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		app.Logger.Warn("Shutdown timeout reached with swaps still in flight")
	}

	var errs []error
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("❌ Failed to shutdown HTTP server", "error", err)
		errs = append(errs, err)
	}

	app.Bus.Close()

	if err := app.shutdownTracer(shutdownCtx); err != nil {
		app.Logger.Error("Failed to flush traces", "error", err)
		errs = append(errs, err)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.Logger.Error("Failed to close database", "error", err)
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	app.Logger.Info("✅ Graceful shutdown completed successfully")
	return nil
}

// printBanner prints the application banner
func printBanner() {
	banner := `
╔══════════════════════════════════════════════════════════════╗
║                 🚀 SOLANA AUTO-TRADER 🚀                      ║
║                                                              ║
║         Safety-gated sniping and copy trading                ║
║                                                              ║
║  Version: %-10s  Build: %-20s    ║
║  Commit:  %-50s    ║
║                                                              ║
╚══════════════════════════════════════════════════════════════╝
	`

	fmt.Printf(banner, Version, BuildTime, GitCommit)
	fmt.Println()
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepilot/internal/advisor"
	"tradepilot/internal/api"
	"tradepilot/internal/config"
	"tradepilot/internal/database"
	"tradepilot/internal/engine"
	"tradepilot/internal/logger"
	"tradepilot/internal/market"
	"tradepilot/internal/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database and seed defaults
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	log.Info("Database opened and schema migrated.")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Wire the engine: feed, advisory pipeline, governor, ledger.
	feed := market.NewFeed(&cfg.Feed, cfg.Trading.Pairs, log)
	advisoryClient := advisor.NewClient(&cfg.Advisor, log)
	pipeline := advisor.NewPipeline(advisoryClient, time.Duration(cfg.Advisor.TimeoutMS)*time.Millisecond, log)
	hub := telemetry.NewHub(log)

	governor := engine.NewGovernor(false, log)
	ledger := engine.NewLedger(db, governor, log)

	session, err := ledger.Session()
	if err != nil {
		log.Fatal("Failed to load session", zap.Error(err))
	}
	governor.SetAutopilot(session.AutopilotEnabled)

	eng := engine.NewEngine(log, &cfg, feed, pipeline, ledger, governor, hub, session.Mode)

	go hub.Run(ctx)

	apiServer := api.NewServer(cfg.Server.Port, eng, hub, log)
	apiServer.Start()

	eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Engine has been shut down.")
}

// Package main runs the simulation API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/unitsim/internal/api"
	"github.com/atlas-desktop/unitsim/internal/config"
	"github.com/atlas-desktop/unitsim/internal/logging"
	"github.com/atlas-desktop/unitsim/internal/montecarlo"
	"github.com/atlas-desktop/unitsim/internal/observability"
	"github.com/atlas-desktop/unitsim/internal/orchestrator"
	"github.com/atlas-desktop/unitsim/internal/workers"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a settings file (yaml/json/toml)")
	host := flag.String("host", "", "Server host (overrides settings)")
	port := flag.Int("port", 0, "Server port (overrides settings)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := logging.New(cfg.LogLevel, "stdout")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting unitsim server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("engine_workers", cfg.Engine.Workers),
		zap.Int("job_workers", cfg.Jobs.Workers),
	)

	metrics := observability.NewMetrics("unitsim")

	engine := montecarlo.NewEngine(logger, &montecarlo.EngineConfig{Workers: cfg.Engine.Workers}, metrics)

	orchConfig := orchestrator.DefaultOrchestratorConfig()
	orchConfig.TrajectoryRuns = cfg.Trajectory.Runs
	orchConfig.TrajectorySeed = cfg.Trajectory.Seed
	orch := orchestrator.NewOrchestrator(logger, orchConfig, engine)

	poolConfig := workers.DefaultPoolConfig("simulations")
	poolConfig.NumWorkers = cfg.Jobs.Workers
	poolConfig.QueueSize = cfg.Jobs.QueueSize
	pool := workers.NewPool(logger, poolConfig)
	pool.Start()

	server := api.NewServer(logger, cfg.Server, orch, pool, metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s:%d%s", cfg.Server.Host, cfg.Server.Port, cfg.Server.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
	)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}
	if err := pool.Stop(); err != nil {
		logger.Error("Error stopping worker pool", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// Package main runs one simulation pass over a model document and writes
// the result snapshot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/unitsim/internal/config"
	"github.com/atlas-desktop/unitsim/internal/logging"
	"github.com/atlas-desktop/unitsim/internal/model"
	"github.com/atlas-desktop/unitsim/internal/montecarlo"
	"github.com/atlas-desktop/unitsim/internal/observability"
	"github.com/atlas-desktop/unitsim/internal/orchestrator"
	"github.com/atlas-desktop/unitsim/internal/report"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"go.uber.org/zap"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	modelPath := flag.String("model", "configs/model.json", "Path to the model document (json/yaml)")
	configPath := flag.String("config", "", "Path to a settings file")
	outPath := flag.String("out", "", "Output path for results JSON (overrides settings)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	workersFlag := flag.Int("workers", 0, "Engine worker goroutines (overrides settings)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	quiet := flag.Bool("quiet", false, "Skip the console summary")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfiguration
	}
	if *outPath != "" {
		cfg.Output.Path = *outPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *workersFlag > 0 {
		cfg.Engine.Workers = *workersFlag
	}
	if *quiet {
		cfg.Output.Summary = false
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = *metricsAddr
	}

	// Logs go to stderr so the summary table owns stdout.
	logger, err := logging.New(cfg.LogLevel, "stderr")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := model.Load(*modelPath)
	if err != nil {
		logger.Error("Failed to load model", zap.String("path", *modelPath), zap.Error(err))
		return exitCode(err)
	}

	metrics := observability.NewMetrics("unitsim")
	if cfg.Metrics.Enabled {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("Metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Serving metrics", zap.String("addr", cfg.Metrics.Addr))
	}

	engine := montecarlo.NewEngine(logger, &montecarlo.EngineConfig{Workers: cfg.Engine.Workers}, metrics)

	orchConfig := orchestrator.DefaultOrchestratorConfig()
	orchConfig.TrajectoryRuns = cfg.Trajectory.Runs
	orchConfig.TrajectorySeed = cfg.Trajectory.Seed
	orch := orchestrator.NewOrchestrator(logger, orchConfig, engine)

	start := time.Now()
	results, err := orch.Run(ctx, m, func(p orchestrator.Progress) {
		logger.Debug("progress",
			zap.String("asset", p.Asset),
			zap.String("stage", p.Stage),
			zap.Int("done", p.Done),
			zap.Int("total", p.Total),
		)
	})
	if err != nil {
		logger.Error("Simulation failed", zap.Error(err))
		return exitCode(err)
	}

	if err := report.WriteJSON(cfg.Output.Path, results); err != nil {
		logger.Error("Failed to write results", zap.Error(err))
		return exitFailure
	}
	logger.Info("Results written",
		zap.String("path", cfg.Output.Path),
		zap.Duration("elapsed", time.Since(start)),
	)

	if cfg.Output.Summary {
		if err := report.PrintSummary(os.Stdout, results); err != nil {
			logger.Error("Failed to print summary", zap.Error(err))
			return exitFailure
		}
	}
	return 0
}

func exitCode(err error) int {
	if types.IsConfigurationError(err) {
		return exitConfiguration
	}
	return exitFailure
}

// Package orchestrator wires the PnL calculator, the Monte Carlo engine and
// the aggregator into one pass over a model document.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/unitsim/internal/model"
	"github.com/atlas-desktop/unitsim/internal/montecarlo"
	"github.com/atlas-desktop/unitsim/internal/pnl"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"go.uber.org/zap"
)

// StageTrajectories labels progress of the illustrative batch.
const StageTrajectories = "trajectories"

// Progress reports the advance of one batch inside a pass.
type Progress struct {
	Asset string `json:"asset"`
	Stage string `json:"stage"` // policy name or StageTrajectories
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// ProgressFunc receives progress updates. It is called from engine worker
// goroutines, one call at a time per batch.
type ProgressFunc func(Progress)

// OrchestratorConfig configures a pass.
type OrchestratorConfig struct {
	TrajectoryRuns int
	TrajectorySeed int64
	ProgressSteps  int // updates per batch; 0 disables progress
}

// DefaultOrchestratorConfig returns the settings of the reference reports.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TrajectoryRuns: montecarlo.DefaultTrajectoryRuns,
		TrajectorySeed: montecarlo.DefaultTrajectorySeed,
		ProgressSteps:  100,
	}
}

// Orchestrator runs every (asset, policy) batch of a model.
type Orchestrator struct {
	logger *zap.Logger
	config OrchestratorConfig
	engine *montecarlo.Engine
	now    func() time.Time
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(logger *zap.Logger, config OrchestratorConfig, engine *montecarlo.Engine) *Orchestrator {
	if config.TrajectoryRuns <= 0 {
		config.TrajectoryRuns = montecarlo.DefaultTrajectoryRuns
	}
	return &Orchestrator{
		logger: logger,
		config: config,
		engine: engine,
		now:    time.Now,
	}
}

// Run validates the model, then produces the full result snapshot.
// Nothing is returned unless every batch succeeds.
func (o *Orchestrator) Run(ctx context.Context, m *types.Model, onProgress ProgressFunc) (*types.Results, error) {
	if err := model.Validate(m); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.Assets))
	for name := range m.Assets {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries, err := pnl.CalculateAll(m)
	if err != nil {
		return nil, err
	}

	sim := m.Simulation
	results := &types.Results{
		Meta: types.ResultsMeta{
			Version:     types.ResultsVersion,
			GeneratedAt: o.now().UTC(),
			Source:      m.Source,
			NRuns:       sim.NRuns,
			NYears:      sim.NYears,
			Seed:        sim.Seed,
		},
		PnL:        summaries,
		Simulation: make(map[types.Policy]map[string]*types.PolicyResult, len(types.Policies)),
		Trajectories: types.TrajectorySet{
			Meta: types.TrajectoryMeta{
				Seed:  o.config.TrajectorySeed,
				NRuns: o.config.TrajectoryRuns,
				Mode:  montecarlo.TrajectoryPolicy,
			},
			Data: make(map[string][][]float64, len(names)),
		},
	}
	for _, policy := range types.Policies {
		results.Simulation[policy] = make(map[string]*types.PolicyResult, len(names))
	}

	o.logger.Info("starting simulation pass",
		zap.Int("assets", len(names)),
		zap.Int("runs", sim.NRuns),
		zap.Int("years", sim.NYears),
		zap.Int64("seed", sim.Seed),
	)

	for _, name := range names {
		asset := m.Assets[name]
		summary := summaries[name]
		params := montecarlo.NewParams(asset, summary)

		o.logger.Info("risk-free baseline",
			zap.String("asset", name),
			zap.Float64("profit_unit_cycle", summary.ProfitUnitCycle),
			zap.Float64("return_year", summary.ReturnYear),
			zap.Int("n_events_year", summary.NEventsYear),
		)

		for _, policy := range types.Policies {
			// Every policy starts again from the same seed.
			batch := montecarlo.NewBatch(policy, params, sim.NRuns, sim.NYears, sim.Seed)
			batch.Progress = o.progress(onProgress, name, string(policy))

			raw, err := o.engine.Simulate(ctx, params, batch)
			if err != nil {
				return nil, fmt.Errorf("simulate %s/%s: %w", name, policy, err)
			}

			res := montecarlo.AggregateResult(raw, summary.CapitalTotal)
			results.Simulation[policy][name] = res

			o.logger.Info("policy summary",
				zap.String("asset", name),
				zap.String("policy", string(policy)),
				zap.Float64("return_mean", res.Summary.ReturnMean),
				zap.Float64("volatility", res.Summary.Volatility),
				zap.Float64("units_final_mean", res.Summary.UnitsFinalMean),
			)
		}

		traj, err := o.engine.SampleTrajectories(ctx, params, montecarlo.TrajectoryBatch{
			Runs:     o.config.TrajectoryRuns,
			Years:    sim.NYears,
			Seed:     o.config.TrajectorySeed,
			Progress: o.progress(onProgress, name, StageTrajectories),
		})
		if err != nil {
			return nil, fmt.Errorf("trajectories %s: %w", name, err)
		}
		results.Trajectories.Data[name] = traj
	}

	o.logger.Info("simulation pass complete", zap.Int("assets", len(names)))
	return results, nil
}

// progress adapts a ProgressFunc to the engine callback, throttled to
// ProgressSteps updates per batch.
func (o *Orchestrator) progress(fn ProgressFunc, asset, stage string) func(done, total int) {
	if fn == nil || o.config.ProgressSteps <= 0 {
		return nil
	}
	return func(done, total int) {
		step := total / o.config.ProgressSteps
		if step < 1 {
			step = 1
		}
		if done%step == 0 || done == total {
			fn(Progress{Asset: asset, Stage: stage, Done: done, Total: total})
		}
	}
}

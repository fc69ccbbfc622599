// Package montecarlo provides the per-unit, per-cycle Monte Carlo engine.
// One algorithm serves both capital policies; they differ only in the unit
// cap applied when cash is reinvested.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"go.uber.org/zap"
)

// Params are the per-asset inputs of a batch. They are read-only once a
// batch starts and shared by every run.
type Params struct {
	Asset           string
	Units           int
	PriceUnit       float64
	CyclesPerYear   int
	ProfitUnitCycle float64
	CapitalTotal    float64
	PLoss           float64
	PctLow          float64
	PctBase         float64
	PctHigh         float64
}

// NewParams combines an asset model with its PnL baseline.
func NewParams(asset *types.AssetModel, summary types.PnLSummary) Params {
	return Params{
		Asset:           asset.Name,
		Units:           asset.Config.NUnits,
		PriceUnit:       asset.Config.PriceUnit,
		CyclesPerYear:   asset.Config.NCyclesYear,
		ProfitUnitCycle: summary.ProfitUnitCycle,
		CapitalTotal:    summary.CapitalTotal,
		PLoss:           asset.Risks.Capital.PLossTotal,
		PctLow:          asset.Risks.Revenue.PctLow,
		PctBase:         asset.Risks.Revenue.PctBase,
		PctHigh:         asset.Risks.Revenue.PctHigh,
	}
}

func (p Params) validate() error {
	fail := func(field, reason string) error {
		return &types.ConfigurationError{Asset: p.Asset, Field: field, Reason: reason}
	}
	switch {
	case p.Units < 0:
		return fail("n_units", "must not be negative")
	case !(p.PriceUnit > 0) || math.IsInf(p.PriceUnit, 0):
		return fail("price_unit", "must be positive and finite")
	case p.CyclesPerYear <= 0:
		return fail("n_cycles_year", "must be positive")
	case !finite(p.ProfitUnitCycle):
		return fail("profit_unit_cycle", "must be finite")
	case !finite(p.CapitalTotal) || p.CapitalTotal <= 0:
		return fail("capital_total", "must be positive and finite")
	case !(p.PLoss >= 0 && p.PLoss <= 1):
		return fail("p_loss_total", "must lie in [0, 1]")
	case !finite(p.PctLow) || !finite(p.PctBase) || !finite(p.PctHigh):
		return fail("revenue", "triangular bounds must be finite")
	case !(p.PctLow <= p.PctBase && p.PctBase <= p.PctHigh):
		return fail("revenue", "triangular bounds must satisfy pct_low <= pct_base <= pct_high")
	}
	return nil
}

// Batch describes one set of independent runs for a single (asset, policy).
type Batch struct {
	Policy types.Policy
	Cap    int // maximum unit count enforced during reinvestment
	Runs   int
	Years  int
	Seed   int64

	// Progress, if set, is called after each completed run with the number
	// of completed runs. Calls are serialised. It never touches the
	// generators, so it cannot change the draws.
	Progress func(done, total int)
}

// NewBatch builds a batch whose cap is derived from the policy.
func NewBatch(policy types.Policy, p Params, runs, years int, seed int64) Batch {
	return Batch{
		Policy: policy,
		Cap:    policy.Cap(p.Units),
		Runs:   runs,
		Years:  years,
		Seed:   seed,
	}
}

func (b Batch) validate(p Params) error {
	switch {
	case !b.Policy.Valid():
		return &types.ConfigurationError{Asset: p.Asset, Field: "policy", Reason: fmt.Sprintf("unknown policy %q", string(b.Policy))}
	case b.Runs <= 0:
		return &types.ConfigurationError{Asset: p.Asset, Field: "n_runs", Reason: "must be positive"}
	case b.Years <= 0:
		return &types.ConfigurationError{Asset: p.Asset, Field: "n_years", Reason: "must be positive"}
	case b.Cap < 0:
		return &types.ConfigurationError{Asset: p.Asset, Field: "cap", Reason: "must not be negative"}
	}
	return nil
}

// Recorder receives batch-level measurements. observability.Metrics
// implements it; a nil Recorder disables recording.
type Recorder interface {
	ObserveBatch(asset string, policy types.Policy, runs int, elapsed time.Duration)
	AddUnitsLost(asset string, policy types.Policy, n int64)
	AddUnitsPurchased(asset string, policy types.Policy, n int64)
	BatchFailed(asset string, policy types.Policy, reason string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(string, types.Policy, int, time.Duration) {}
func (nopRecorder) AddUnitsLost(string, types.Policy, int64)              {}
func (nopRecorder) AddUnitsPurchased(string, types.Policy, int64)         {}
func (nopRecorder) BatchFailed(string, types.Policy, string)              {}

// EngineConfig configures the engine
type EngineConfig struct {
	Workers int // goroutines sharing the runs of a batch
}

// DefaultEngineConfig returns one worker per CPU
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{Workers: runtime.NumCPU()}
}

// Engine runs Monte Carlo batches.
type Engine struct {
	logger   *zap.Logger
	config   *EngineConfig
	recorder Recorder
}

// NewEngine creates a new engine. recorder may be nil.
func NewEngine(logger *zap.Logger, config *EngineConfig, recorder Recorder) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Engine{
		logger:   logger,
		config:   config,
		recorder: recorder,
	}
}

// Simulate runs every run of the batch and returns the raw series.
//
// Run i draws from its own generator seeded with (b.Seed, i), so the output
// depends only on the parameters and the seed, never on the worker count
// or on scheduling. Any invariant violation aborts the whole batch.
func (e *Engine) Simulate(ctx context.Context, p Params, b Batch) (*types.SimulationResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := b.validate(p); err != nil {
		return nil, err
	}

	e.logger.Info("starting batch",
		zap.String("asset", p.Asset),
		zap.String("policy", string(b.Policy)),
		zap.Int("runs", b.Runs),
		zap.Int("years", b.Years),
		zap.Int("cap", b.Cap),
		zap.Int64("seed", b.Seed),
	)
	start := time.Now()

	result := &types.SimulationResult{
		Revenues: make([][]float64, b.Runs),
		Capitals: make([][]float64, b.Runs),
		Units:    make([][]int, b.Runs),
	}

	numWorkers := e.config.Workers
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > b.Runs {
		numWorkers = b.Runs
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		firstErr  error
		progress  sync.Mutex
		completed int
		lost      atomic.Int64
		purchased atomic.Int64
	)

	jobs := make(chan int, b.Runs)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Scratch buffers are per worker; generators are per run.
			sim := newRunSimulator(p, b)

			for run := range jobs {
				if runCtx.Err() != nil {
					continue
				}

				out := runSeries{
					revenues: make([]float64, b.Years),
					capitals: make([]float64, b.Years+1),
					units:    make([]int, b.Years+1),
				}
				stats, err := sim.run(runCtx, run, out)
				if err != nil {
					if runCtx.Err() != nil && errors.Is(err, runCtx.Err()) {
						continue
					}
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					continue
				}

				result.Revenues[run] = out.revenues
				result.Capitals[run] = out.capitals
				result.Units[run] = out.units
				lost.Add(stats.lost)
				purchased.Add(stats.purchased)

				if b.Progress != nil {
					progress.Lock()
					completed++
					b.Progress(completed, b.Runs)
					progress.Unlock()
				}
			}
		}()
	}

	for run := 0; run < b.Runs; run++ {
		jobs <- run
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		e.recorder.BatchFailed(p.Asset, b.Policy, "invariant")
		e.logger.Error("batch aborted",
			zap.String("asset", p.Asset),
			zap.String("policy", string(b.Policy)),
			zap.Error(firstErr),
		)
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		e.recorder.BatchFailed(p.Asset, b.Policy, "cancelled")
		return nil, fmt.Errorf("batch %s/%s cancelled: %w", p.Asset, b.Policy, err)
	}

	elapsed := time.Since(start)
	e.recorder.ObserveBatch(p.Asset, b.Policy, b.Runs, elapsed)
	e.recorder.AddUnitsLost(p.Asset, b.Policy, lost.Load())
	e.recorder.AddUnitsPurchased(p.Asset, b.Policy, purchased.Load())

	e.logger.Info("batch complete",
		zap.String("asset", p.Asset),
		zap.String("policy", string(b.Policy)),
		zap.Duration("elapsed", elapsed),
		zap.Int64("units_lost", lost.Load()),
		zap.Int64("units_purchased", purchased.Load()),
	)

	return result, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package montecarlo

import (
	"context"

	"github.com/atlas-desktop/unitsim/pkg/types"
)

// Defaults for the illustrative trajectory batch.
const (
	DefaultTrajectoryRuns       = 30
	DefaultTrajectorySeed int64 = 123
)

// TrajectoryBatch sizes an illustrative sample of raw revenue paths.
type TrajectoryBatch struct {
	Runs     int
	Years    int
	Seed     int64
	Progress func(done, total int)
}

// TrajectoryPolicy is the policy trajectories are always sampled under.
const TrajectoryPolicy = types.PolicyFixedFleet

// SampleTrajectories runs a small fixed-fleet batch with its own seed and
// returns the raw per-run yearly revenues. Capital and unit series are
// dropped. Each run builds its own generator, so nothing is shared with
// the main batches.
func (e *Engine) SampleTrajectories(ctx context.Context, p Params, tb TrajectoryBatch) ([][]float64, error) {
	if tb.Runs == 0 {
		tb.Runs = DefaultTrajectoryRuns
	}

	b := NewBatch(TrajectoryPolicy, p, tb.Runs, tb.Years, tb.Seed)
	b.Progress = tb.Progress
	res, err := e.Simulate(ctx, p, b)
	if err != nil {
		return nil, err
	}
	return res.Revenues, nil
}

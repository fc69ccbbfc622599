package montecarlo_test

import (
	"context"
	"math"
	"testing"

	"github.com/atlas-desktop/unitsim/internal/montecarlo"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.InDelta(t, 1.9, montecarlo.Percentile(sorted, 10), 1e-12)
	assert.InDelta(t, 5.5, montecarlo.Percentile(sorted, 50), 1e-12)
	assert.InDelta(t, 9.1, montecarlo.Percentile(sorted, 90), 1e-12)
	assert.Equal(t, 1.0, montecarlo.Percentile(sorted, 0))
	assert.Equal(t, 10.0, montecarlo.Percentile(sorted, 100))

	assert.Equal(t, 42.0, montecarlo.Percentile([]float64{42}, 90))
	assert.True(t, math.IsNaN(montecarlo.Percentile(nil, 50)))

	// Exact rank.
	assert.Equal(t, 3.0, montecarlo.Percentile([]float64{1, 2, 3, 4, 5}, 50))
}

func TestAggregate(t *testing.T) {
	m := [][]float64{
		{1, 10},
		{2, 20},
		{3, 30},
		{4, 40},
		{5, 50},
	}

	agg := montecarlo.Aggregate(m)
	assert.Equal(t, []float64{3, 30}, agg.Mean)
	assert.InDelta(t, 1.4, agg.P10[0], 1e-12)
	assert.InDelta(t, 3.0, agg.P50[0], 1e-12)
	assert.InDelta(t, 4.6, agg.P90[0], 1e-12)
	assert.InDelta(t, 46.0, agg.P90[1], 1e-12)

	// Input must not be reordered.
	assert.Equal(t, []float64{1, 10}, m[0])
}

func TestAggregateUnits(t *testing.T) {
	band := montecarlo.AggregateUnits([][]int{{10, 9}, {10, 10}, {10, 8}})
	assert.Equal(t, []float64{10, 9}, band.Mean)
	assert.Equal(t, 10.0, band.P90[0])
	assert.InDelta(t, 8.2, band.P10[1], 1e-12)
}

func TestSummarize(t *testing.T) {
	res := &types.SimulationResult{
		Capitals: [][]float64{{100, 110}, {100, 130}},
		Units:    [][]int{{1, 1}, {1, 2}},
	}

	s := montecarlo.Summarize(res, 100)
	assert.InDelta(t, 0.2, s.ReturnMean, 1e-12)
	assert.InDelta(t, 0.1, s.Volatility, 1e-12, "population standard deviation")
	assert.InDelta(t, 0.12, s.ReturnP10, 1e-12)
	assert.InDelta(t, 0.28, s.ReturnP90, 1e-12)
	assert.Equal(t, 1.5, s.UnitsFinalMean)
}

func TestAggregatedPercentilesAreOrdered(t *testing.T) {
	p := riskyParams()
	res, err := newEngine(4).Simulate(context.Background(), p, montecarlo.NewBatch(types.PolicyReinvest, p, 500, 5, 42))
	require.NoError(t, err)

	agg := montecarlo.AggregateResult(res, p.CapitalTotal)
	for _, series := range []types.AggregatedSeries{agg.Revenues, agg.Capitals} {
		for j := range series.Mean {
			assert.LessOrEqual(t, series.P10[j], series.P50[j])
			assert.LessOrEqual(t, series.P50[j], series.P90[j])
		}
	}
	for j := range agg.Units.Mean {
		assert.LessOrEqual(t, agg.Units.P10[j], agg.Units.P90[j])
	}

	assert.Len(t, agg.Revenues.Mean, 5)
	assert.Len(t, agg.Capitals.Mean, 6)
	assert.Equal(t, p.CapitalTotal, agg.Capitals.Mean[0])
	assert.LessOrEqual(t, agg.Summary.ReturnP10, agg.Summary.ReturnMean+agg.Summary.Volatility)
	assert.GreaterOrEqual(t, agg.Summary.Volatility, 0.0)
}

func TestRiskFreeSummaryHasNoVolatility(t *testing.T) {
	p := riskFreeParams()
	res, err := newEngine(2).Simulate(context.Background(), p, montecarlo.NewBatch(types.PolicyFixedFleet, p, 20, 1, 1))
	require.NoError(t, err)

	s := montecarlo.Summarize(res, p.CapitalTotal)
	assert.InDelta(t, 0.2, s.ReturnMean, 1e-12)
	assert.InDelta(t, 0.0, s.Volatility, 1e-12)
	assert.InDelta(t, 0.2, s.ReturnP10, 1e-12)
	assert.InDelta(t, 0.2, s.ReturnP90, 1e-12)
	assert.Equal(t, 10.0, s.UnitsFinalMean)
}

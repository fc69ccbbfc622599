package montecarlo

import (
	"math"
	"sort"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"gonum.org/v1/gonum/stat"
)

// Percentile returns the p-th percentile (0-100) of an ascending sample.
//
// The estimator is fixed: linear interpolation between closest ranks with
// h = (n-1)*p/100, i.e. Hyndman-Fan type 7.
// gonum's stat.Quantile has no type-7 mode.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	h := (p / 100) * float64(n-1)
	lower := int(math.Floor(h))
	upper := int(math.Ceil(h))
	if lower == upper {
		return sorted[lower]
	}

	lo, hi := sorted[lower], sorted[upper]
	v := lo + (h-float64(lower))*(hi-lo)
	// Keep the value inside its bracket so percentiles stay ordered.
	return math.Min(math.Max(v, lo), hi)
}

// Aggregate reduces a run-major matrix to mean and p10/p50/p90 per column.
func Aggregate(m [][]float64) types.AggregatedSeries {
	cols := width(m)
	out := types.AggregatedSeries{
		Mean: make([]float64, cols),
		P10:  make([]float64, cols),
		P50:  make([]float64, cols),
		P90:  make([]float64, cols),
	}

	col := make([]float64, len(m))
	for j := 0; j < cols; j++ {
		for i, row := range m {
			col[i] = row[j]
		}
		out.Mean[j] = stat.Mean(col, nil)
		sort.Float64s(col)
		out.P10[j] = Percentile(col, 10)
		out.P50[j] = Percentile(col, 50)
		out.P90[j] = Percentile(col, 90)
	}
	return out
}

// AggregateUnits reduces a unit-count matrix to mean and p10/p90 per column.
func AggregateUnits(m [][]int) types.UnitBand {
	full := Aggregate(toFloat(m))
	return types.UnitBand{Mean: full.Mean, P10: full.P10, P90: full.P90}
}

// Summarize computes terminal-year statistics. Terminal return is
// capital[last] / capitalTotal - 1; volatility is its population standard
// deviation across runs.
func Summarize(res *types.SimulationResult, capitalTotal float64) types.SummaryStats {
	n := len(res.Capitals)
	if n == 0 {
		return types.SummaryStats{}
	}

	returns := make([]float64, n)
	finalUnits := make([]float64, n)
	for i := 0; i < n; i++ {
		caps := res.Capitals[i]
		returns[i] = caps[len(caps)-1]/capitalTotal - 1
		units := res.Units[i]
		finalUnits[i] = float64(units[len(units)-1])
	}

	mean, std := stat.PopMeanStdDev(returns, nil)
	sort.Float64s(returns)

	return types.SummaryStats{
		ReturnMean:     mean,
		ReturnP10:      Percentile(returns, 10),
		ReturnP90:      Percentile(returns, 90),
		Volatility:     std,
		UnitsFinalMean: stat.Mean(finalUnits, nil),
	}
}

// AggregateResult builds the full aggregated view of one batch.
func AggregateResult(res *types.SimulationResult, capitalTotal float64) *types.PolicyResult {
	return &types.PolicyResult{
		Revenues: Aggregate(res.Revenues),
		Capitals: Aggregate(res.Capitals),
		Units:    AggregateUnits(res.Units),
		Summary:  Summarize(res, capitalTotal),
	}
}

func width(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func toFloat(m [][]int) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = float64(v)
		}
	}
	return out
}

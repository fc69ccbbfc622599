package types

import "time"

// ResultsVersion is written to the meta block of every result document.
const ResultsVersion = "2.1"

// PnLSummary is the risk-free profitability baseline of one asset.
type PnLSummary struct {
	NUnits          int     `json:"-"`
	PriceUnit       float64 `json:"-"`
	NCyclesYear     int     `json:"-"`
	ProfitUnitCycle float64 `json:"profit_unit_cycle"`
	ProfitUnitYear  float64 `json:"profit_unit_year"`
	ProfitTotalYear float64 `json:"profit_total_year"`
	CapitalTotal    float64 `json:"capital_total"`
	ReturnYear      float64 `json:"return_year"`
	NEventsYear     int     `json:"n_events_year"`
}

// SimulationResult holds the raw run-major series of one (asset, policy) batch.
type SimulationResult struct {
	Revenues [][]float64 `json:"revenues"` // [run][year], n_years
	Capitals [][]float64 `json:"capitals"` // [run][year], n_years+1
	Units    [][]int     `json:"units"`    // [run][year], n_years+1
}

// AggregatedSeries is the per-year-index distribution of one metric.
type AggregatedSeries struct {
	Mean []float64 `json:"mean"`
	P10  []float64 `json:"p10"`
	P50  []float64 `json:"p50"`
	P90  []float64 `json:"p90"`
}

// UnitBand is the per-year-index distribution of the fleet size.
type UnitBand struct {
	Mean []float64 `json:"mean"`
	P10  []float64 `json:"p10"`
	P90  []float64 `json:"p90"`
}

// SummaryStats describes the terminal-year outcome across runs.
type SummaryStats struct {
	ReturnMean     float64 `json:"return_mean"`
	ReturnP10      float64 `json:"return_p10"`
	ReturnP90      float64 `json:"return_p90"`
	Volatility     float64 `json:"volatility"` // std of terminal return
	UnitsFinalMean float64 `json:"units_final_mean"`
}

// PolicyResult is the aggregated outcome of one (asset, policy) batch.
type PolicyResult struct {
	Revenues AggregatedSeries `json:"revenues"`
	Capitals AggregatedSeries `json:"capitals"`
	Units    UnitBand         `json:"units"`
	Summary  SummaryStats     `json:"summary"`
}

// TrajectoryMeta records how the illustrative trajectories were produced.
type TrajectoryMeta struct {
	Seed  int64  `json:"seed"`
	NRuns int    `json:"n_runs"`
	Mode  Policy `json:"mode"`
}

// TrajectorySet holds raw per-run revenue series per asset.
type TrajectorySet struct {
	Meta TrajectoryMeta         `json:"meta"`
	Data map[string][][]float64 `json:"data"`
}

// ResultsMeta describes the invocation that produced a result document.
type ResultsMeta struct {
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"timestamp"`
	Source      string    `json:"source,omitempty"`
	NRuns       int       `json:"n_runs"`
	NYears      int       `json:"n_years"`
	Seed        int64     `json:"seed"`
}

// Results is the single snapshot handed to reporting collaborators.
// Consumers format it; they never re-derive simulated values from it.
type Results struct {
	Meta         ResultsMeta                         `json:"meta"`
	PnL          map[string]PnLSummary               `json:"pnl"`
	Simulation   map[Policy]map[string]*PolicyResult `json:"simulation"`
	Trajectories TrajectorySet                       `json:"trajectories"`
}

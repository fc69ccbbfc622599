package montecarlo

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"gonum.org/v1/gonum/stat/distuv"
)

// runSeries receives the yearly snapshots of one run.
type runSeries struct {
	revenues []float64
	capitals []float64
	units    []int
}

// runStats counts the fleet events of one run.
type runStats struct {
	lost      int64
	purchased int64
}

// runSimulator advances one run at a time. A worker reuses it across runs;
// the generator is re-seeded from (seed, run index) at the start of each.
type runSimulator struct {
	p      Params
	policy types.Policy
	cap    int
	years  int
	seed   uint64

	pcg *rand.PCG
	rng *rand.Rand

	// Inverse-CDF sampler for the revenue multiplier. When the bounds
	// collapse to a point the multiplier is the constant PctBase.
	tri        distuv.Triangle
	triangular bool

	rolls []float64
	mults []float64
}

func newRunSimulator(p Params, b Batch) *runSimulator {
	pcg := rand.NewPCG(0, 0)
	s := &runSimulator{
		p:      p,
		policy: b.Policy,
		cap:    b.Cap,
		years:  b.Years,
		seed:   uint64(b.Seed),
		pcg:    pcg,
		rng:    rand.New(pcg),
	}
	if p.PctLow < p.PctHigh {
		s.tri = distuv.NewTriangle(p.PctLow, p.PctHigh, p.PctBase, nil)
		s.triangular = true
	}
	return s
}

// run simulates one run and writes its series into out. The context is
// checked once per simulated year.
func (s *runSimulator) run(ctx context.Context, idx int, out runSeries) (runStats, error) {
	s.pcg.Seed(s.seed, uint64(idx))

	var stats runStats
	units := s.p.Units
	cash := 0.0

	out.capitals[0] = s.p.CapitalTotal
	out.units[0] = units

	for year := 1; year <= s.years; year++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		yearRevenue := 0.0

		for c := 0; c < s.p.CyclesPerYear; c++ {
			revenue, lost := s.cycle(units)
			yearRevenue += revenue
			units -= lost
			stats.lost += int64(lost)

			// Only cash from earlier years is available here; this year's
			// revenue is credited once all cycles are done.
			var bought int
			units, cash, bought = replenish(units, s.cap, cash, s.p.PriceUnit)
			stats.purchased += int64(bought)
			if err := s.check(idx, year, units, cash, bought); err != nil {
				return stats, err
			}
		}

		out.revenues[year-1] = yearRevenue
		cash += yearRevenue

		var bought int
		units, cash, bought = replenish(units, s.cap, cash, s.p.PriceUnit)
		stats.purchased += int64(bought)
		if err := s.check(idx, year, units, cash, bought); err != nil {
			return stats, err
		}

		capital := float64(units)*s.p.PriceUnit + cash
		if !finite(yearRevenue) || !finite(capital) {
			return stats, s.internal(idx, year, fmt.Sprintf("non-finite value: revenue=%v capital=%v", yearRevenue, capital))
		}
		out.capitals[year] = capital
		out.units[year] = units
	}

	return stats, nil
}

// cycle plays one production cycle for every alive unit. All loss rolls
// are drawn as one batch, then the survivors' multipliers as a second
// batch; every draw is still an independent sample.
func (s *runSimulator) cycle(units int) (revenue float64, lost int) {
	if units == 0 {
		return 0, 0
	}

	s.rolls = s.uniforms(s.rolls, units)
	for _, roll := range s.rolls {
		if roll < s.p.PLoss {
			lost++
		}
	}

	s.mults = s.multipliers(s.mults, units-lost)
	for _, m := range s.mults {
		revenue += s.p.ProfitUnitCycle * (1 + m)
	}
	return revenue, lost
}

func (s *runSimulator) uniforms(buf []float64, n int) []float64 {
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	buf = buf[:n]
	for i := range buf {
		buf[i] = s.rng.Float64()
	}
	return buf
}

// multipliers draws n revenue multipliers in [PctLow, PctHigh].
func (s *runSimulator) multipliers(buf []float64, n int) []float64 {
	if !s.triangular {
		if cap(buf) < n {
			buf = make([]float64, n)
		}
		buf = buf[:n]
		for i := range buf {
			buf[i] = s.p.PctBase
		}
		return buf
	}

	buf = s.uniforms(buf, n)
	for i, u := range buf {
		buf[i] = s.tri.Quantile(u)
	}
	return buf
}

func (s *runSimulator) check(run, year, units int, cash float64, bought int) error {
	switch {
	case units < 0:
		return s.internal(run, year, fmt.Sprintf("negative unit count %d", units))
	case units > s.cap && units > s.p.Units:
		return s.internal(run, year, fmt.Sprintf("unit count %d exceeds cap %d", units, s.cap))
	case bought > 0 && cash < 0:
		return s.internal(run, year, fmt.Sprintf("purchase left cash negative (%v)", cash))
	case !finite(cash):
		return s.internal(run, year, fmt.Sprintf("non-finite cash %v", cash))
	}
	return nil
}

func (s *runSimulator) internal(run, year int, reason string) error {
	return &types.InternalError{
		Asset:  s.p.Asset,
		Policy: s.policy,
		Run:    run,
		Year:   year,
		Reason: reason,
	}
}

// replenish buys whole units while the fleet is below limit and cash covers
// a unit. Each purchased unit takes exactly price from cash.
func replenish(units, limit int, cash, price float64) (int, float64, int) {
	if units >= limit || !(cash >= price) {
		return units, cash, 0
	}

	room := limit - units
	affordable := math.Floor(cash / price)
	bought := room
	if affordable < float64(room) {
		bought = int(affordable)
	}
	// cash/price can round up across an integer boundary.
	for bought > 0 && cash-float64(bought)*price < 0 {
		bought--
	}
	return units + bought, cash - float64(bought)*price, bought
}

// Package pnl computes the deterministic, risk-free profitability baseline
// of an asset. The result feeds the Monte Carlo engine.
package pnl

import (
	"fmt"
	"math"
	"reflect"

	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// unitEconomics is the per-unit result of one kind-specific formula.
type unitEconomics struct {
	profitUnitCycle decimal.Decimal
	capitalTotal    decimal.Decimal
}

// Calculate derives the PnL summary of an asset. It is pure: the same
// asset model always yields the same summary.
func Calculate(asset *types.AssetModel) (types.PnLSummary, error) {
	if asset == nil {
		return types.PnLSummary{}, &types.ConfigurationError{Reason: "nil asset model"}
	}

	cfg := asset.Config
	if cfg.NUnits <= 0 || cfg.NCyclesYear <= 0 || !(cfg.PriceUnit > 0) || math.IsInf(cfg.PriceUnit, 1) {
		return types.PnLSummary{}, &types.ConfigurationError{
			Asset:  asset.Name,
			Field:  "config",
			Reason: "n_units, price_unit and n_cycles_year must be positive and finite",
		}
	}
	if field := nonFinite(asset.Inputs); field != "" {
		return types.PnLSummary{}, &types.ConfigurationError{
			Asset:  asset.Name,
			Field:  "inputs." + field,
			Reason: "must be finite",
		}
	}

	nUnits := decimal.NewFromInt(int64(cfg.NUnits))
	priceUnit := decimal.NewFromFloat(cfg.PriceUnit)

	var (
		econ unitEconomics
		err  error
	)
	switch in := asset.Inputs.(type) {
	case *types.PropertyInputs:
		econ = property(in, nUnits, priceUnit)
	case *types.LivestockInputs:
		econ = livestock(in, nUnits, priceUnit)
	case *types.FeedlotInputs:
		econ = feedlot(in, nUnits, priceUnit)
	default:
		err = &types.ConfigurationError{
			Asset:  asset.Name,
			Field:  "inputs",
			Reason: fmt.Sprintf("no PnL formula for inputs %T", asset.Inputs),
		}
	}
	if err != nil {
		return types.PnLSummary{}, err
	}
	if asset.Inputs.Kind() != asset.Kind {
		return types.PnLSummary{}, &types.ConfigurationError{
			Asset:  asset.Name,
			Field:  "kind",
			Reason: fmt.Sprintf("kind %s does not match %s inputs", asset.Kind, asset.Inputs.Kind()),
		}
	}
	if !econ.capitalTotal.IsPositive() {
		return types.PnLSummary{}, &types.ConfigurationError{
			Asset:  asset.Name,
			Field:  "capital_total",
			Reason: "initial capital must be positive",
		}
	}

	cycles := decimal.NewFromInt(int64(cfg.NCyclesYear))
	profitUnitYear := econ.profitUnitCycle.Mul(cycles)
	profitTotalYear := profitUnitYear.Mul(nUnits)

	return types.PnLSummary{
		NUnits:          cfg.NUnits,
		PriceUnit:       cfg.PriceUnit,
		NCyclesYear:     cfg.NCyclesYear,
		ProfitUnitCycle: econ.profitUnitCycle.InexactFloat64(),
		ProfitUnitYear:  profitUnitYear.InexactFloat64(),
		ProfitTotalYear: profitTotalYear.InexactFloat64(),
		CapitalTotal:    econ.capitalTotal.InexactFloat64(),
		ReturnYear:      profitTotalYear.Div(econ.capitalTotal).InexactFloat64(),
		NEventsYear:     cfg.NUnits * cfg.NCyclesYear,
	}, nil
}

// CalculateAll derives the summary of every asset in the model.
func CalculateAll(m *types.Model) (map[string]types.PnLSummary, error) {
	out := make(map[string]types.PnLSummary, len(m.Assets))
	for name, asset := range m.Assets {
		summary, err := Calculate(asset)
		if err != nil {
			return nil, fmt.Errorf("pnl for %s: %w", name, err)
		}
		out[name] = summary
	}
	return out, nil
}

// property: one cycle per year of rent net of running costs.
func property(in *types.PropertyInputs, nUnits, priceUnit decimal.Decimal) unitEconomics {
	revenue := d(in.RentMonth).Mul(d(in.NMonthsOccupied))
	cost := d(in.CostMaintenance).Add(d(in.CostTaxes)).Add(d(in.CostManagement))
	return unitEconomics{
		profitUnitCycle: revenue.Sub(cost),
		capitalTotal:    nUnits.Mul(priceUnit),
	}
}

// livestock: net milk after loss plus expected calf sales, less upkeep.
func livestock(in *types.LivestockInputs, nUnits, priceUnit decimal.Decimal) unitEconomics {
	milkNet := d(in.MilkLitersDay).Mul(d(in.NDaysProduction)).Mul(one.Sub(d(in.PctMilkLoss)))
	revenueMilk := milkNet.Mul(d(in.PriceMilkLiter))
	revenueCalf := d(in.PctBirthRate).Mul(d(in.CalfWeightKg)).Mul(d(in.PriceCalfKg))
	cost := d(in.CostFeed).Add(d(in.CostVet)).Add(d(in.CostOther))
	return unitEconomics{
		profitUnitCycle: revenueMilk.Add(revenueCalf).Sub(cost),
		capitalTotal:    nUnits.Mul(priceUnit),
	}
}

// feedlot: buy, fatten and resell each cycle. The facility cost and one
// cycle of working capital per head make up the initial capital.
func feedlot(in *types.FeedlotInputs, nUnits, priceUnit decimal.Decimal) unitEconomics {
	weightSell := d(in.WeightBuyKg).Add(d(in.WeightGainKg))
	revenue := weightSell.Mul(d(in.PriceSellKg))
	costCycle := priceUnit.Add(d(in.CostFeedCycle)).Add(d(in.CostVetCycle)).Add(d(in.CostOtherCycle))
	return unitEconomics{
		profitUnitCycle: revenue.Sub(costCycle),
		capitalTotal:    d(in.CostHangarYear).Add(nUnits.Mul(costCycle)),
	}
}

// d converts a float known to be finite; decimal panics on NaN and Inf.
func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// nonFinite returns the json name of the first NaN or infinite field of
// the inputs, or "" when every field is finite.
func nonFinite(in types.Inputs) string {
	v := reflect.ValueOf(in)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return ""
	}
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() != reflect.Float64 {
			continue
		}
		if x := f.Float(); math.IsNaN(x) || math.IsInf(x, 0) {
			return v.Type().Field(i).Tag.Get("json")
		}
	}
	return ""
}

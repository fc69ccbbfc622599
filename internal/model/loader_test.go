// Package model_test provides tests for model loading and validation.
package model_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atlas-desktop/unitsim/internal/model"
	"github.com/atlas-desktop/unitsim/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{
  "assets": {
    "flat": {
      "kind": "property",
      "config": {"n_units": 5, "price_unit": 500000, "n_cycles_year": 1},
      "inputs": {
        "rent_month": 12000, "n_months_occupied": 11,
        "cost_maintenance": 10000, "cost_taxes": 5900, "cost_management": 4000
      },
      "risks": {
        "revenue": {"pct_low": -0.1, "pct_base": 0, "pct_high": 0.05},
        "capital": {"p_loss_total": 0.01}
      }
    },
    "pen": {
      "kind": "feedlot",
      "config": {"n_units": 10, "price_unit": 300000, "n_cycles_year": 3},
      "inputs": {
        "weight_buy_kg": 250, "weight_gain_kg": 100, "price_sell_kg": 2500,
        "cost_feed_cycle": 200000, "cost_vet_cycle": 50000,
        "cost_other_cycle": 50000, "cost_hangar_year": 2000000
      },
      "risks": {
        "revenue": {"pct_low": -0.3, "pct_base": 0, "pct_high": 0.15},
        "capital": {"p_loss_total": 0.03}
      }
    }
  },
  "simulation": {"n_runs": 100, "n_years": 5, "seed": 42}
}`

func TestLoadReaderValidModel(t *testing.T) {
	m, err := model.LoadReader(strings.NewReader(validJSON), "json")
	require.NoError(t, err)

	require.Len(t, m.Assets, 2)
	assert.Equal(t, types.SimulationConfig{NRuns: 100, NYears: 5, Seed: 42}, m.Simulation)

	flat := m.Assets["flat"]
	require.NotNil(t, flat)
	assert.Equal(t, "flat", flat.Name)
	assert.Equal(t, types.KindProperty, flat.Kind)
	assert.Equal(t, 5, flat.Config.NUnits)
	assert.Equal(t, -0.1, flat.Risks.Revenue.PctLow)
	assert.Equal(t, 0.01, flat.Risks.Capital.PLossTotal)

	in, ok := flat.Inputs.(*types.PropertyInputs)
	require.True(t, ok, "property inputs expected, got %T", flat.Inputs)
	assert.Equal(t, 5900.0, in.CostTaxes)

	pen, ok := m.Assets["pen"].Inputs.(*types.FeedlotInputs)
	require.True(t, ok)
	assert.Equal(t, 2_000_000.0, pen.CostHangarYear)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(validJSON), 0o644))

	m, err := model.Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.Source)
	assert.Len(t, m.Assets, 2)
}

func TestLoadYAML(t *testing.T) {
	doc := `
assets:
  cow:
    kind: livestock
    config: {n_units: 10, price_unit: 250000, n_cycles_year: 1}
    inputs:
      milk_liters_day: 12
      n_days_production: 300
      pct_milk_loss: 0.05
      price_milk_liter: 60
      pct_birth_rate: 0.8
      calf_weight_kg: 40
      price_calf_kg: 500
      cost_feed: 8000
      cost_vet: 2000
      cost_other: 1200
    risks:
      revenue: {pct_low: -0.2, pct_base: 0, pct_high: 0.1}
      capital: {p_loss_total: 0.05}
simulation: {n_runs: 10, n_years: 2, seed: 7}
`
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	m, err := model.Load(path)
	require.NoError(t, err)
	in, ok := m.Assets["cow"].Inputs.(*types.LivestockInputs)
	require.True(t, ok)
	assert.Equal(t, 0.8, in.PctBirthRate)
}

func TestLoadRepositorySample(t *testing.T) {
	m, err := model.Load(filepath.Join("..", "..", "configs", "model.json"))
	require.NoError(t, err)
	assert.Len(t, m.Assets, 3)
	assert.Equal(t, 5000, m.Simulation.NRuns)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := model.Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestLoadReaderRejects(t *testing.T) {
	cases := map[string]struct {
		old, new string
		field    string
	}{
		"unknown kind": {
			old: `"kind": "property"`, new: `"kind": "vineyard"`, field: "kind",
		},
		"missing input field": {
			old: `"cost_taxes": 5900, `, new: ``, field: "inputs",
		},
		"unknown input field": {
			old: `"cost_taxes": 5900,`, new: `"cost_taxes": 5900, "cost_insurance": 10,`, field: "inputs",
		},
		"inverted triangle": {
			old: `"pct_low": -0.1, "pct_base": 0`, new: `"pct_low": 0.2, "pct_base": 0`, field: "risks.revenue.pct_low",
		},
		"loss probability above one": {
			old: `"p_loss_total": 0.01`, new: `"p_loss_total": 1.5`, field: "risks.capital.p_loss_total",
		},
		"negative loss probability": {
			old: `"p_loss_total": 0.03`, new: `"p_loss_total": -0.1`, field: "risks.capital.p_loss_total",
		},
		"zero units": {
			old: `"n_units": 5`, new: `"n_units": 0`, field: "config.n_units",
		},
		"negative price": {
			old: `"price_unit": 500000`, new: `"price_unit": -1`, field: "config.price_unit",
		},
		"too many months": {
			old: `"n_months_occupied": 11`, new: `"n_months_occupied": 13`, field: "n_months_occupied",
		},
		"negative cost": {
			old: `"cost_hangar_year": 2000000`, new: `"cost_hangar_year": -5`, field: "cost_hangar_year",
		},
		"zero runs": {
			old: `"n_runs": 100`, new: `"n_runs": 0`, field: "n_runs",
		},
		"missing seed": {
			old: `, "seed": 42`, new: ``, field: "simulation",
		},
		"missing risks": {
			old: `"risks": {
        "revenue": {"pct_low": -0.3, "pct_base": 0, "pct_high": 0.15},
        "capital": {"p_loss_total": 0.03}
      }`, new: `"x": 1`, field: "risks",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := strings.Replace(validJSON, tc.old, tc.new, 1)
			require.NotEqual(t, validJSON, doc, "replacement did not apply")

			_, err := model.LoadReader(strings.NewReader(doc), "json")
			require.Error(t, err)

			var cfgErr *types.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, cfgErr.Field, tc.field, "error: %v", err)
		})
	}
}

func TestLoadReaderRejectsEmptyAndMalformed(t *testing.T) {
	_, err := model.LoadReader(strings.NewReader(`{"simulation": {"n_runs": 1, "n_years": 1, "seed": 1}}`), "json")
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))

	_, err = model.LoadReader(strings.NewReader(`{"assets": {}}`), "json")
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))

	_, err = model.LoadReader(strings.NewReader(`{not json`), "json")
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))
}

func TestValidateAssetKindMismatch(t *testing.T) {
	a := &types.AssetModel{
		Name:   "x",
		Kind:   types.KindLivestock,
		Config: types.UnitConfig{NUnits: 1, PriceUnit: 1, NCyclesYear: 1},
		Inputs: &types.PropertyInputs{RentMonth: 1, NMonthsOccupied: 1},
	}
	err := model.ValidateAsset("x", a)
	require.Error(t, err)
	assert.True(t, types.IsConfigurationError(err))

	a.Kind = types.KindProperty
	assert.NoError(t, model.ValidateAsset("x", a))

	a.Risks.Revenue.PctHigh = math.Inf(1)
	err = model.ValidateAsset("x", a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finite")
}

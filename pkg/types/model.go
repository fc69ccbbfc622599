// Package types provides the model and result types shared by the simulator.
package types

// Kind identifies the investment vehicle an asset model describes.
type Kind string

const (
	KindProperty  Kind = "property"
	KindLivestock Kind = "livestock"
	KindFeedlot   Kind = "feedlot"
)

// Kinds lists every supported asset kind.
var Kinds = []Kind{KindProperty, KindLivestock, KindFeedlot}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindProperty, KindLivestock, KindFeedlot:
		return true
	}
	return false
}

// Policy selects how accumulated cash is put back to work.
type Policy string

const (
	// PolicyFixedFleet replaces losses up to the starting fleet size.
	PolicyFixedFleet Policy = "without_reinvest"
	// PolicyReinvest buys as many units as cash allows.
	PolicyReinvest Policy = "with_reinvest"
)

// Policies lists both capital policies in reporting order.
var Policies = []Policy{PolicyFixedFleet, PolicyReinvest}

// ReinvestCap bounds the fleet under PolicyReinvest so per-cycle work and
// memory stay finite when returns compound over long horizons.
const ReinvestCap = 999_999

// Cap returns the maximum unit count the policy enforces during
// reinvestment. A reinvesting fleet that already starts above ReinvestCap
// keeps its initial size as the cap. Unknown policies get 0.
func (p Policy) Cap(initialUnits int) int {
	switch p {
	case PolicyFixedFleet:
		return initialUnits
	case PolicyReinvest:
		return max(initialUnits, ReinvestCap)
	}
	return 0
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p == PolicyFixedFleet || p == PolicyReinvest
}

// Model is a full input document: every asset plus the batch settings.
type Model struct {
	Assets     map[string]*AssetModel `json:"assets"`
	Simulation SimulationConfig       `json:"simulation"`
	Source     string                 `json:"-"`
}

// SimulationConfig holds the batch size and the seed of the main batch.
type SimulationConfig struct {
	NRuns  int   `json:"n_runs" mapstructure:"n_runs" validate:"gt=0"`
	NYears int   `json:"n_years" mapstructure:"n_years" validate:"gt=0"`
	Seed   int64 `json:"seed" mapstructure:"seed"`
}

// AssetModel describes one investment vehicle.
type AssetModel struct {
	Name   string      `json:"name"`
	Kind   Kind        `json:"kind" validate:"asset_kind"`
	Config UnitConfig  `json:"config"`
	Inputs Inputs      `json:"inputs" validate:"-"`
	Risks  RiskProfile `json:"risks"`
}

// UnitConfig sizes the fleet.
type UnitConfig struct {
	NUnits      int     `json:"n_units" mapstructure:"n_units" validate:"gt=0"`
	PriceUnit   float64 `json:"price_unit" mapstructure:"price_unit" validate:"finite,gt=0"`
	NCyclesYear int     `json:"n_cycles_year" mapstructure:"n_cycles_year" validate:"gt=0"`
}

// RiskProfile holds the revenue variability and capital loss risks.
type RiskProfile struct {
	Revenue RevenueRisk `json:"revenue" mapstructure:"revenue"`
	Capital CapitalRisk `json:"capital" mapstructure:"capital"`
}

// RevenueRisk holds the triangular bounds of the per-cycle revenue multiplier.
type RevenueRisk struct {
	PctLow  float64 `json:"pct_low" mapstructure:"pct_low" validate:"finite,ltefield=PctBase"`
	PctBase float64 `json:"pct_base" mapstructure:"pct_base" validate:"finite,ltefield=PctHigh"`
	PctHigh float64 `json:"pct_high" mapstructure:"pct_high" validate:"finite"`
}

// CapitalRisk holds the per-unit per-cycle probability of total loss.
type CapitalRisk struct {
	PLossTotal float64 `json:"p_loss_total" mapstructure:"p_loss_total" validate:"finite,gte=0,lte=1"`
}

// Inputs is the closed set of kind-specific revenue and cost fields.
// Only the structs in this package implement it.
type Inputs interface {
	Kind() Kind
	sealed()
}

// PropertyInputs are the rental inputs of one property.
type PropertyInputs struct {
	RentMonth       float64 `json:"rent_month" mapstructure:"rent_month" validate:"finite,gte=0"`
	NMonthsOccupied float64 `json:"n_months_occupied" mapstructure:"n_months_occupied" validate:"finite,gte=0,lte=12"`
	CostMaintenance float64 `json:"cost_maintenance" mapstructure:"cost_maintenance" validate:"finite,gte=0"`
	CostTaxes       float64 `json:"cost_taxes" mapstructure:"cost_taxes" validate:"finite,gte=0"`
	CostManagement  float64 `json:"cost_management" mapstructure:"cost_management" validate:"finite,gte=0"`
}

// LivestockInputs are the yearly milk and calf inputs of one dairy animal.
type LivestockInputs struct {
	MilkLitersDay   float64 `json:"milk_liters_day" mapstructure:"milk_liters_day" validate:"finite,gte=0"`
	NDaysProduction float64 `json:"n_days_production" mapstructure:"n_days_production" validate:"finite,gte=0,lte=366"`
	PctMilkLoss     float64 `json:"pct_milk_loss" mapstructure:"pct_milk_loss" validate:"finite,gte=0,lte=1"`
	PriceMilkLiter  float64 `json:"price_milk_liter" mapstructure:"price_milk_liter" validate:"finite,gte=0"`
	PctBirthRate    float64 `json:"pct_birth_rate" mapstructure:"pct_birth_rate" validate:"finite,gte=0"`
	CalfWeightKg    float64 `json:"calf_weight_kg" mapstructure:"calf_weight_kg" validate:"finite,gte=0"`
	PriceCalfKg     float64 `json:"price_calf_kg" mapstructure:"price_calf_kg" validate:"finite,gte=0"`
	CostFeed        float64 `json:"cost_feed" mapstructure:"cost_feed" validate:"finite,gte=0"`
	CostVet         float64 `json:"cost_vet" mapstructure:"cost_vet" validate:"finite,gte=0"`
	CostOther       float64 `json:"cost_other" mapstructure:"cost_other" validate:"finite,gte=0"`
}

// FeedlotInputs are the per-cycle fattening inputs of one feedlot head.
type FeedlotInputs struct {
	WeightBuyKg    float64 `json:"weight_buy_kg" mapstructure:"weight_buy_kg" validate:"finite,gte=0"`
	WeightGainKg   float64 `json:"weight_gain_kg" mapstructure:"weight_gain_kg" validate:"finite,gte=0"`
	PriceSellKg    float64 `json:"price_sell_kg" mapstructure:"price_sell_kg" validate:"finite,gte=0"`
	CostFeedCycle  float64 `json:"cost_feed_cycle" mapstructure:"cost_feed_cycle" validate:"finite,gte=0"`
	CostVetCycle   float64 `json:"cost_vet_cycle" mapstructure:"cost_vet_cycle" validate:"finite,gte=0"`
	CostOtherCycle float64 `json:"cost_other_cycle" mapstructure:"cost_other_cycle" validate:"finite,gte=0"`
	CostHangarYear float64 `json:"cost_hangar_year" mapstructure:"cost_hangar_year" validate:"finite,gte=0"`
}

func (*PropertyInputs) Kind() Kind  { return KindProperty }
func (*LivestockInputs) Kind() Kind { return KindLivestock }
func (*FeedlotInputs) Kind() Kind   { return KindFeedlot }

func (*PropertyInputs) sealed()  {}
func (*LivestockInputs) sealed() {}
func (*FeedlotInputs) sealed()   {}

// NewInputs returns an empty inputs struct for kind, or nil if the kind is unknown.
func NewInputs(kind Kind) Inputs {
	switch kind {
	case KindProperty:
		return &PropertyInputs{}
	case KindLivestock:
		return &LivestockInputs{}
	case KindFeedlot:
		return &FeedlotInputs{}
	}
	return nil
}

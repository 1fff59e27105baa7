// internal/pnl/accumulator.go
package pnl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
)

// UnmatchedPolicy decides how sold quantity without a matching lot is booked.
type UnmatchedPolicy string

const (
	// UnmatchedIgnore leaves realized PnL untouched by the unmatched part.
	UnmatchedIgnore UnmatchedPolicy = "ignore"
	// UnmatchedZeroCost books the unmatched proceeds as profit at zero cost.
	UnmatchedZeroCost UnmatchedPolicy = "zero_cost"
)

// ParsePolicy converts a config value to a policy.
func ParsePolicy(s string) (UnmatchedPolicy, error) {
	switch UnmatchedPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnmatchedIgnore:
		return UnmatchedIgnore, nil
	case UnmatchedZeroCost:
		return UnmatchedZeroCost, nil
	default:
		return "", fmt.Errorf("unknown unmatched policy %q", s)
	}
}

// RealizedPnl holds the running totals of one asset.
type RealizedPnl struct {
	RealizedUSD       float64 `json:"realized_usd"`
	SoldQuantity      float64 `json:"sold_quantity"`
	ProceedsUSD       float64 `json:"proceeds_usd"`
	CostBasisUSD      float64 `json:"cost_basis_usd"`
	UnmatchedQuantity float64 `json:"unmatched_quantity"`
	Sales             int     `json:"sales"`
	BoughtQuantity    float64 `json:"bought_quantity"`
	BoughtUSD         float64 `json:"bought_usd"`
	Buys              int     `json:"buys"`
}

// Realization is the PnL booked by one sale.
type Realization struct {
	TradeID           string               `json:"trade_id"`
	AssetID           string               `json:"asset_id"`
	Symbol            string               `json:"symbol,omitempty"`
	Timestamp         time.Time            `json:"timestamp"`
	Quantity          float64              `json:"quantity"`
	MatchedQuantity   float64              `json:"matched_quantity"`
	UnmatchedQuantity float64              `json:"unmatched_quantity"`
	SaleUnitPriceUSD  float64              `json:"sale_unit_price_usd"`
	ProceedsUSD       float64              `json:"proceeds_usd"`
	CostBasisUSD      float64              `json:"cost_basis_usd"`
	RealizedUSD       float64              `json:"realized_usd"`
	Lots              []ledger.ConsumedLot `json:"lots,omitempty"`
}

// Accumulator keeps realized PnL per asset. Values are accumulated unrounded.
type Accumulator struct {
	entries map[string]*RealizedPnl
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{entries: make(map[string]*RealizedPnl)}
}

// FromTotals restores an accumulator from persisted totals.
func FromTotals(totals map[string]RealizedPnl) *Accumulator {
	a := NewAccumulator()
	for asset, entry := range totals {
		e := entry
		a.entries[asset] = &e
	}
	return a
}

// Touch creates the asset entry if it does not exist yet.
func (a *Accumulator) Touch(assetID string) *RealizedPnl {
	entry, ok := a.entries[assetID]
	if !ok {
		entry = &RealizedPnl{}
		a.entries[assetID] = entry
	}
	return entry
}

// ApplyBuy records a purchase in the asset's buy totals.
func (a *Accumulator) ApplyBuy(assetID string, quantity, valueUSD float64) {
	entry := a.Touch(assetID)
	entry.BoughtQuantity += quantity
	entry.BoughtUSD += valueUSD
	entry.Buys++
}

// ApplySale adds quantity*(salePrice-unitCost) of every consumed lot to the
// asset's realized PnL.
func (a *Accumulator) ApplySale(assetID string, taken []ledger.ConsumedLot, saleUnitPriceUSD float64) Realization {
	entry := a.Touch(assetID)

	r := Realization{
		AssetID:          assetID,
		SaleUnitPriceUSD: saleUnitPriceUSD,
		Lots:             taken,
	}
	for _, c := range taken {
		r.MatchedQuantity += c.Quantity
		r.ProceedsUSD += c.Quantity * saleUnitPriceUSD
		r.CostBasisUSD += c.Quantity * c.UnitCostUSD
		r.RealizedUSD += c.Quantity * (saleUnitPriceUSD - c.UnitCostUSD)
	}
	r.Quantity = r.MatchedQuantity

	entry.RealizedUSD += r.RealizedUSD
	entry.SoldQuantity += r.MatchedQuantity
	entry.ProceedsUSD += r.ProceedsUSD
	entry.CostBasisUSD += r.CostBasisUSD
	entry.Sales++

	return r
}

// RecordUnmatched books sold quantity that had no lot behind it and updates r.
func (a *Accumulator) RecordUnmatched(r *Realization, quantity float64, policy UnmatchedPolicy) {
	if quantity <= 0 {
		return
	}
	entry := a.Touch(r.AssetID)
	entry.UnmatchedQuantity += quantity

	r.UnmatchedQuantity += quantity
	r.Quantity += quantity

	if policy == UnmatchedZeroCost {
		proceeds := quantity * r.SaleUnitPriceUSD
		entry.RealizedUSD += proceeds
		entry.ProceedsUSD += proceeds
		entry.SoldQuantity += quantity
		r.ProceedsUSD += proceeds
		r.RealizedUSD += proceeds
	}
}

// Get returns a copy of the asset totals.
func (a *Accumulator) Get(assetID string) (RealizedPnl, bool) {
	entry, ok := a.entries[assetID]
	if !ok {
		return RealizedPnl{}, false
	}
	return *entry, true
}

// Totals returns a copy of every entry.
func (a *Accumulator) Totals() map[string]RealizedPnl {
	out := make(map[string]RealizedPnl, len(a.entries))
	for asset, entry := range a.entries {
		out[asset] = *entry
	}
	return out
}

// Realized returns realized USD per asset.
func (a *Accumulator) Realized() map[string]float64 {
	out := make(map[string]float64, len(a.entries))
	for asset, entry := range a.entries {
		out[asset] = entry.RealizedUSD
	}
	return out
}

// Total returns realized USD across all assets.
func (a *Accumulator) Total() float64 {
	var total float64
	for _, asset := range a.Assets() {
		total += a.entries[asset].RealizedUSD
	}
	return total
}

// TotalBoughtUSD returns USD spent on buys across all assets.
func (a *Accumulator) TotalBoughtUSD() float64 {
	var total float64
	for _, asset := range a.Assets() {
		total += a.entries[asset].BoughtUSD
	}
	return total
}

// Assets returns the tracked assets, sorted.
func (a *Accumulator) Assets() []string {
	assets := make([]string, 0, len(a.entries))
	for asset := range a.entries {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

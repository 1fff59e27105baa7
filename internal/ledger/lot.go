// internal/ledger/lot.go
package ledger

import (
	"fmt"
	"math"
	"time"
)

// Lot is an open purchase of an asset that has not been fully sold.
type Lot struct {
	QuantityRemaining float64   `json:"quantity_remaining"`
	OriginalQuantity  float64   `json:"original_quantity"`
	UnitCostUSD       float64   `json:"unit_cost_usd"`
	OpenedAt          time.Time `json:"opened_at"`
	TradeID           string    `json:"trade_id,omitempty"`
}

// CostBasisUSD returns the cost of the remaining quantity.
func (l Lot) CostBasisUSD() float64 {
	return l.QuantityRemaining * l.UnitCostUSD
}

// ConsumedLot is the part of a lot taken by one sale.
type ConsumedLot struct {
	Quantity    float64   `json:"quantity"`
	UnitCostUSD float64   `json:"unit_cost_usd"`
	OpenedAt    time.Time `json:"opened_at"`
	TradeID     string    `json:"trade_id,omitempty"`
}

// InvalidQuantityError is returned when a non-positive quantity reaches the ledger.
type InvalidQuantityError struct {
	AssetID  string
	Quantity float64
	Field    string
}

func (e *InvalidQuantityError) Error() string {
	field := e.Field
	if field == "" {
		field = "quantity"
	}
	return fmt.Sprintf("invalid %s %v for asset %s", field, e.Quantity, e.AssetID)
}

// InsufficientInventoryWarning describes a sale larger than tracked
// inventory. It is not an error.
type InsufficientInventoryWarning struct {
	AssetID   string
	Requested float64
	Unmatched float64
}

func (w InsufficientInventoryWarning) String() string {
	return fmt.Sprintf("sell of %v %s exceeds inventory by %v", w.Requested, w.AssetID, w.Unmatched)
}

// ConsumeResult is the outcome of a FIFO consumption.
type ConsumeResult struct {
	Taken     []ConsumedLot
	Shortfall *InsufficientInventoryWarning
}

// Matched returns the quantity actually taken from lots.
func (r ConsumeResult) Matched() float64 {
	var total float64
	for _, c := range r.Taken {
		total += c.Quantity
	}
	return total
}

// Unmatched returns the quantity that had no lot to consume.
func (r ConsumeResult) Unmatched() float64 {
	if r.Shortfall == nil {
		return 0
	}
	return r.Shortfall.Unmatched
}

const dustTolerance = 1e-9

// isDust reports whether a residue is float noise relative to reference.
// The tolerance scales with reference, so tiny lots are not swallowed whole.
func isDust(residue, reference float64) bool {
	return residue <= dustTolerance*math.Abs(reference)
}

func validQuantity(q float64) bool {
	return q > 0 && !math.IsInf(q, 0) && !math.IsNaN(q)
}

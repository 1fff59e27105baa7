// internal/ledger/ledger.go
package ledger

import (
	"math"
	"sort"
	"time"
)

// Ledger keeps one FIFO lot queue per asset. It is not safe for concurrent
// use; the ingestion controller serializes access per wallet.
type Ledger struct {
	queues map[string][]Lot
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{queues: make(map[string][]Lot)}
}

// FromLots restores a ledger from persisted queues. Empty and dust lots are dropped.
func FromLots(lots map[string][]Lot) *Ledger {
	l := New()
	for asset, queue := range lots {
		restored := make([]Lot, 0, len(queue))
		for _, lot := range queue {
			if !validQuantity(lot.QuantityRemaining) {
				continue
			}
			restored = append(restored, lot)
		}
		if len(restored) > 0 {
			l.queues[asset] = restored
		}
	}
	return l
}

// OpenLot appends a new lot to the tail of the asset's queue.
func (l *Ledger) OpenLot(assetID string, quantity, unitCostUSD float64, openedAt time.Time, tradeID string) error {
	if !validQuantity(quantity) {
		return &InvalidQuantityError{AssetID: assetID, Quantity: quantity}
	}
	if unitCostUSD < 0 || math.IsInf(unitCostUSD, 0) || math.IsNaN(unitCostUSD) {
		return &InvalidQuantityError{AssetID: assetID, Quantity: unitCostUSD, Field: "unit cost"}
	}

	l.queues[assetID] = append(l.queues[assetID], Lot{
		QuantityRemaining: quantity,
		OriginalQuantity:  quantity,
		UnitCostUSD:       unitCostUSD,
		OpenedAt:          openedAt,
		TradeID:           tradeID,
	})
	return nil
}

// Consume removes quantity from the front of the asset's queue. When the
// queue empties first, the remainder is reported as a shortfall.
func (l *Ledger) Consume(assetID string, quantity float64) (ConsumeResult, error) {
	if !validQuantity(quantity) {
		return ConsumeResult{}, &InvalidQuantityError{AssetID: assetID, Quantity: quantity}
	}

	queue := l.queues[assetID]
	remaining := quantity
	var result ConsumeResult

	for remaining > 0 && len(queue) > 0 {
		lot := &queue[0]

		take := math.Min(remaining, lot.QuantityRemaining)
		result.Taken = append(result.Taken, ConsumedLot{
			Quantity:    take,
			UnitCostUSD: lot.UnitCostUSD,
			OpenedAt:    lot.OpenedAt,
			TradeID:     lot.TradeID,
		})

		lot.QuantityRemaining -= take
		remaining -= take

		if isDust(lot.QuantityRemaining, lot.OriginalQuantity) {
			queue = queue[1:]
		}
		if isDust(remaining, quantity) {
			remaining = 0
		}
	}

	if len(queue) == 0 {
		delete(l.queues, assetID)
	} else {
		l.queues[assetID] = queue
	}

	if remaining > 0 {
		result.Shortfall = &InsufficientInventoryWarning{
			AssetID:   assetID,
			Requested: quantity,
			Unmatched: remaining,
		}
	}
	return result, nil
}

// Queue returns a copy of the asset's open lots in FIFO order.
func (l *Ledger) Queue(assetID string) []Lot {
	queue := l.queues[assetID]
	if len(queue) == 0 {
		return nil
	}
	out := make([]Lot, len(queue))
	copy(out, queue)
	return out
}

// TotalQuantity returns the open quantity of an asset.
func (l *Ledger) TotalQuantity(assetID string) float64 {
	var total float64
	for _, lot := range l.queues[assetID] {
		total += lot.QuantityRemaining
	}
	return total
}

// Assets returns the assets with open lots, sorted.
func (l *Ledger) Assets() []string {
	assets := make([]string, 0, len(l.queues))
	for asset := range l.queues {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// OpenLots returns a deep copy of every non-empty queue.
func (l *Ledger) OpenLots() map[string][]Lot {
	out := make(map[string][]Lot, len(l.queues))
	for asset := range l.queues {
		out[asset] = l.Queue(asset)
	}
	return out
}

// internal/ingest/errors.go
package ingest

import "fmt"

// PersistenceError reports a failed load or save. The run that returned it
// committed nothing.
type PersistenceError struct {
	WalletID string
	Op       string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s failed for wallet %s: %v", e.Op, e.WalletID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WarningKind classifies a non-fatal problem found during a run.
type WarningKind string

const (
	WarningMalformed             WarningKind = "malformed"
	WarningInvalidQuantity       WarningKind = "invalid_quantity"
	WarningInsufficientInventory WarningKind = "insufficient_inventory"
	WarningOutOfOrder            WarningKind = "out_of_order"
)

// Warning is a recorded, non-fatal problem with one trade.
type Warning struct {
	Kind              WarningKind `json:"kind"`
	TradeID           string      `json:"trade_id,omitempty"`
	AssetID           string      `json:"asset_id,omitempty"`
	UnmatchedQuantity float64     `json:"unmatched_quantity,omitempty"`
	Message           string      `json:"message"`
}

// internal/ingest/result.go
package ingest

import (
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
)

// Result is returned by Ingest.
type Result struct {
	WalletID          string                  `json:"wallet_id"`
	RunID             string                  `json:"run_id"`
	Version           int64                   `json:"version"`
	Committed         bool                    `json:"committed"`
	// Replayed is set when a late trade made the run rebuild the wallet from
	// its stored history; Applied and Realizations then cover that history.
	Replayed          bool                    `json:"replayed,omitempty"`
	RealizedPnl       map[string]float64      `json:"realized_pnl"`
	OpenLots          map[string][]ledger.Lot `json:"open_lots"`
	UnmatchedQuantity map[string]float64      `json:"unmatched_quantity,omitempty"`
	Realizations      []pnl.Realization       `json:"realizations,omitempty"`
	Warnings          []Warning               `json:"warnings,omitempty"`
	Applied           int                     `json:"applied"`
	Duplicates        int                     `json:"duplicates"`
	Skipped           int                     `json:"skipped"`
}

// WarningCounts groups warnings by kind.
func (r *Result) WarningCounts() map[string]int {
	counts := make(map[string]int)
	for _, w := range r.Warnings {
		counts[string(w.Kind)]++
	}
	return counts
}

// Snapshot is the read-only view returned by GetState.
type Snapshot struct {
	WalletID     string                     `json:"wallet_id"`
	Version      int64                      `json:"version"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	RealizedPnl  map[string]float64         `json:"realized_pnl"`
	Details      map[string]pnl.RealizedPnl `json:"details"`
	OpenLots     map[string][]ledger.Lot    `json:"open_lots"`
	ProcessedIDs []string                   `json:"processed_ids"`
}

// TotalBoughtUSD sums USD spent on buys across assets.
func (s *Snapshot) TotalBoughtUSD() float64 {
	var total float64
	for _, d := range s.Details {
		total += d.BoughtUSD
	}
	return total
}

// TotalRealized sums realized PnL across assets.
func (s *Snapshot) TotalRealized() float64 {
	var total float64
	for _, v := range s.RealizedPnl {
		total += v
	}
	return total
}

func snapshotFrom(walletID string, state *models.WalletState) *Snapshot {
	if state == nil {
		state = models.NewWalletState(walletID)
	}
	acc := pnl.FromTotals(state.Realized)
	book := ledger.FromLots(state.Lots)

	return &Snapshot{
		WalletID:     walletID,
		Version:      state.Version,
		UpdatedAt:    state.UpdatedAt,
		RealizedPnl:  acc.Realized(),
		Details:      acc.Totals(),
		OpenLots:     book.OpenLots(),
		ProcessedIDs: state.SortedProcessedIDs(),
	}
}

package ui

import (
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/wallet"
)

// Tea message types for UI communication

// RefreshMsg carries the result of one data reload.
type RefreshMsg struct {
	WalletID    string
	State       *ingest.Snapshot
	Holdings    *wallet.Snapshot
	Err         error // state load failed
	HoldingsErr error
	At          time.Time
}

// IngestMsg is sent by the event bridge after a run committed or failed.
type IngestMsg struct {
	WalletID    string
	Version     int64
	Applied     int
	RealizedUSD float64
	Err         error
}

// tickMsg drives auto refresh.
type tickMsg time.Time

// internal/storage/models/wallet_state.go
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
)

// WalletState is the persisted ledger of one wallet. It is always read and
// written as a whole.
type WalletState struct {
	WalletID     string                     `json:"wallet_id"`
	Version      int64                      `json:"version"`
	Lots         map[string][]ledger.Lot    `json:"lots"`
	Realized     map[string]pnl.RealizedPnl `json:"realized"`
	ProcessedIDs []string                   `json:"processed_ids"`
	UpdatedAt    time.Time                  `json:"updated_at"`

	// History is every applied trade in application order. It lets a late
	// trade be merged by replaying instead of being applied out of order.
	History     []trade.Trade `json:"history,omitempty"`
	LastTradeAt time.Time     `json:"last_trade_at"`
}

// Replayable reports whether History covers every processed trade. States
// written before History was kept cannot be replayed.
func (s *WalletState) Replayable() bool {
	return len(s.History) == len(s.ProcessedIDs)
}

// NewWalletState returns an empty state at version 0.
func NewWalletState(walletID string) *WalletState {
	return &WalletState{
		WalletID: walletID,
		Lots:     make(map[string][]ledger.Lot),
		Realized: make(map[string]pnl.RealizedPnl),
	}
}

// Marshal encodes the state as JSON.
func (s *WalletState) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wallet state: %w", err)
	}
	return data, nil
}

// UnmarshalWalletState decodes a state produced by Marshal.
func UnmarshalWalletState(data []byte) (*WalletState, error) {
	var s WalletState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode wallet state: %w", err)
	}
	if s.Lots == nil {
		s.Lots = make(map[string][]ledger.Lot)
	}
	if s.Realized == nil {
		s.Realized = make(map[string]pnl.RealizedPnl)
	}
	return &s, nil
}

// Clone returns a deep copy.
func (s *WalletState) Clone() *WalletState {
	out := &WalletState{
		WalletID:     s.WalletID,
		Version:      s.Version,
		Lots:         make(map[string][]ledger.Lot, len(s.Lots)),
		Realized:     make(map[string]pnl.RealizedPnl, len(s.Realized)),
		ProcessedIDs: append([]string(nil), s.ProcessedIDs...),
		UpdatedAt:    s.UpdatedAt,
		History:      append([]trade.Trade(nil), s.History...),
		LastTradeAt:  s.LastTradeAt,
	}
	for asset, lots := range s.Lots {
		out.Lots[asset] = append([]ledger.Lot(nil), lots...)
	}
	for asset, r := range s.Realized {
		out.Realized[asset] = r
	}
	return out
}

// SortedProcessedIDs returns the processed ids in lexical order.
func (s *WalletState) SortedProcessedIDs() []string {
	ids := append([]string(nil), s.ProcessedIDs...)
	sort.Strings(ids)
	return ids
}

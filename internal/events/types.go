// internal/events/types.go
package events

import (
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

// EventType represents the type of event.
type EventType string

const (
	// Ingestion events
	IngestCompleted EventType = "ingest.completed"
	IngestFailed    EventType = "ingest.failed"

	// Ledger events
	SaleRealized       EventType = "ledger.sale_realized"
	InventoryShortfall EventType = "ledger.inventory_shortfall"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
	WalletID  string
	RunID     string
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase fills the common fields with the current time.
func NewBase(typ EventType, walletID, runID string) BaseEvent {
	return BaseEvent{
		EventType: typ,
		EventTime: time.Now().UTC(),
		WalletID:  walletID,
		RunID:     runID,
	}
}

// IngestCompletedEvent is emitted after a batch has been committed.
type IngestCompletedEvent struct {
	BaseEvent
	Version      int64
	Applied      int
	Duplicates   int
	Skipped      int
	Warnings     int
	RealizedUSD  float64 // total across assets after the commit
	Realizations []pnl.Realization
}

// IngestFailedEvent is emitted when a batch could not be committed.
type IngestFailedEvent struct {
	BaseEvent
	Error error
}

// SaleRealizedEvent carries the PnL booked by one committed sale.
type SaleRealizedEvent struct {
	BaseEvent
	Realization pnl.Realization
}

// InventoryShortfallEvent is emitted for a committed sale that exceeded tracked inventory.
type InventoryShortfallEvent struct {
	BaseEvent
	TradeID   string
	AssetID   string
	Requested float64
	Unmatched float64
}

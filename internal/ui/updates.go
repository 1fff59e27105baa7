package ui

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
)

// UpdateSender provides non-blocking UI update sending with statistics
type UpdateSender struct {
	msgChan        chan tea.Msg
	droppedUpdates uint64
	sentUpdates    uint64
	logger         *zap.Logger
	statsInterval  time.Duration
	stopStats      chan struct{}
	closeOnce      sync.Once
}

// NewUpdateSender creates a new non-blocking update sender
func NewUpdateSender(msgChan chan tea.Msg, logger *zap.Logger) *UpdateSender {
	us := &UpdateSender{
		msgChan:       msgChan,
		logger:        logger,
		statsInterval: 30 * time.Second,
		stopStats:     make(chan struct{}),
	}

	go us.logStats()

	return us
}

// SendUpdate sends a message to UI without blocking
func (us *UpdateSender) SendUpdate(msg tea.Msg) {
	select {
	case us.msgChan <- msg:
		atomic.AddUint64(&us.sentUpdates, 1)
	default:
		// UI не успевает, ingest не ждет
		atomic.AddUint64(&us.droppedUpdates, 1)
	}
}

// Listen returns a command that delivers the next queued update.
func (us *UpdateSender) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-us.msgChan
	}
}

// GetStats returns current statistics
func (us *UpdateSender) GetStats() (sent, dropped uint64) {
	sent = atomic.LoadUint64(&us.sentUpdates)
	dropped = atomic.LoadUint64(&us.droppedUpdates)
	return sent, dropped
}

func (us *UpdateSender) logStats() {
	ticker := time.NewTicker(us.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sent, dropped := us.GetStats()
			if dropped > 0 {
				us.logger.Warn("UI update statistics",
					zap.Uint64("sent", sent),
					zap.Uint64("dropped", dropped),
					zap.Float64("drop_rate", float64(dropped)/float64(sent+dropped)*100))
			}
		case <-us.stopStats:
			return
		}
	}
}

// Close stops the update sender
func (us *UpdateSender) Close() {
	us.closeOnce.Do(func() { close(us.stopStats) })
}

// BridgeEvents forwards ingest results from bus to the UI.
func BridgeEvents(bus *events.Bus, sender *UpdateSender) []events.Subscription {
	completed := bus.SubscribeFunc(events.IngestCompleted, func(_ context.Context, event events.Event) error {
		if e, ok := event.(*events.IngestCompletedEvent); ok {
			sender.SendUpdate(IngestMsg{
				WalletID:    e.WalletID,
				Version:     e.Version,
				Applied:     e.Applied,
				RealizedUSD: e.RealizedUSD,
			})
		}
		return nil
	})
	failed := bus.SubscribeFunc(events.IngestFailed, func(_ context.Context, event events.Event) error {
		if e, ok := event.(*events.IngestFailedEvent); ok {
			sender.SendUpdate(IngestMsg{WalletID: e.WalletID, Err: e.Error})
		}
		return nil
	})
	return []events.Subscription{completed, failed}
}

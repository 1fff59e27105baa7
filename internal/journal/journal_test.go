package journal

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

func realization(id string, realized float64) pnl.Realization {
	opened := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	return pnl.Realization{
		TradeID:          id,
		AssetID:          "MintA",
		Symbol:           "AAA",
		Timestamp:        opened.Add(90 * time.Minute),
		Quantity:         10,
		MatchedQuantity:  10,
		SaleUnitPriceUSD: 2,
		ProceedsUSD:      20,
		CostBasisUSD:     20 - realized,
		RealizedUSD:      realized,
		Lots:             []ledger.ConsumedLot{{Quantity: 10, UnitCostUSD: (20 - realized) / 10, OpenedAt: opened}},
	}
}

func TestNewEntry(t *testing.T) {
	e := NewEntry("wallet-1", "run-1", realization("s1", 5))

	assert.Equal(t, "s1", e.TradeID)
	assert.Equal(t, "wallet-1", e.Wallet)
	assert.Equal(t, "1h30m", e.HoldTime)
	assert.Equal(t, 1, e.LotsConsumed)
	assert.InDelta(t, 33.333, e.PnLPercent, 0.001)
	assert.Len(t, e.ToCSV(), len(CSVHeaders()))
}

func TestCalculateHoldTime(t *testing.T) {
	base := time.Unix(1700000000, 0)
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{3*time.Hour + 7*time.Minute, "3h7m"},
		{50 * time.Hour, "2d2h"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateHoldTime(base, base.Add(tt.d)))
		})
	}
}

func TestJournal_StatisticsAndBoundedMemory(t *testing.T) {
	j, err := New(t.TempDir(), 3, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	for i, v := range []float64{5, -2, 0, 8, -6} {
		require.NoError(t, j.Record(NewEntry("w", "r", realization(fmt.Sprintf("s%d", i), v))))
	}

	recent := j.GetRecent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "s2", recent[0].TradeID)
	assert.Equal(t, "s4", recent[2].TradeID)
	assert.Len(t, j.GetRecent(1), 1)
	assert.Len(t, j.GetByAsset("MintA"), 3)
	assert.Empty(t, j.GetByAsset("MintB"))

	stats := j.GetStatistics()
	assert.Equal(t, 5, stats.TotalSales)
	assert.Equal(t, 2, stats.WinCount)
	assert.Equal(t, 2, stats.LossCount)
	assert.Equal(t, 1, stats.BreakEvenCount)
	assert.InDelta(t, 40.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 5.0, stats.TotalRealized, 1e-9)
	assert.InDelta(t, 6.5, stats.AvgWinUSD, 1e-9)
	assert.InDelta(t, -4.0, stats.AvgLossUSD, 1e-9)
	require.NotNil(t, stats.Best)
	assert.Equal(t, "s3", stats.Best.TradeID)
	require.NotNil(t, stats.Worst)
	assert.Equal(t, "s4", stats.Worst.TradeID)
}

func TestJournal_AttachWritesCSV(t *testing.T) {
	j, err := New(t.TempDir(), 10, zap.NewNop())
	require.NoError(t, err)

	bus := events.NewBus(zap.NewNop(), 16)
	sub := j.Attach(bus)
	defer sub.Unsubscribe()

	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(&events.SaleRealizedEvent{
			BaseEvent:   events.NewBase(events.SaleRealized, "wallet-1", "run-1"),
			Realization: realization(fmt.Sprintf("s%d", i), float64(i)),
		}))
	}
	// Other event types are ignored
	require.NoError(t, bus.Publish(&events.IngestFailedEvent{
		BaseEvent: events.NewBase(events.IngestFailed, "wallet-1", "run-1"),
	}))

	require.NoError(t, bus.Shutdown(context.Background()))
	require.NoError(t, j.Close())

	f, err := os.Open(j.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeaders(), rows[0])
	assert.Equal(t, "s0", rows[1][0])
	assert.Equal(t, "wallet-1", rows[1][2])
}

func TestJournal_ConcurrentAccess(t *testing.T) {
	j, err := New(t.TempDir(), 50, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				if err := j.Record(NewEntry("w", "r", realization(fmt.Sprintf("%d-%d", id, i), 1))); err != nil {
					t.Errorf("record: %v", err)
				}
				_ = j.GetStatistics()
				_ = j.GetRecent(5)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 200, j.GetStatistics().TotalSales)
	assert.Len(t, j.GetRecent(0), 50)
}

func TestReadEntries_RoundTrip(t *testing.T) {
	j, err := New(t.TempDir(), 10, zap.NewNop())
	require.NoError(t, err)

	want := []Entry{
		NewEntry("w", "r1", realization("s1", 5)),
		NewEntry("w", "r2", realization("s2", -1.25)),
	}
	for _, e := range want {
		require.NoError(t, j.Record(e))
	}
	require.NoError(t, j.Close())

	got, err := ReadEntries(j.Path())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].TradeID, got[i].TradeID)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		assert.InDelta(t, want[i].RealizedUSD, got[i].RealizedUSD, 1e-9)
		assert.InDelta(t, want[i].CostBasisUSD, got[i].CostBasisUSD, 1e-9)
		assert.Equal(t, want[i].HoldTime, got[i].HoldTime)
		assert.Equal(t, want[i].RunID, got[i].RunID)
	}

	_, err = ReadEntries(j.Path() + ".missing")
	assert.Error(t, err)
}

func TestJournal_ReplayedSaleReplacesEarlierRow(t *testing.T) {
	j, err := New(t.TempDir(), 10, zap.NewNop())
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Record(NewEntry("w", "run-1", realization("s1", 5))))
	require.NoError(t, j.Record(NewEntry("w", "run-1", realization("s2", -1))))
	// s1 realized again after a rebuild with a different cost basis
	require.NoError(t, j.Record(NewEntry("w", "run-2", realization("s1", 3))))
	// same trade id on another wallet is a different sale
	require.NoError(t, j.Record(NewEntry("w2", "run-3", realization("s1", 7))))

	stats := j.GetStatistics()
	assert.Equal(t, 3, stats.TotalSales)
	assert.InDelta(t, 9.0, stats.TotalRealized, 1e-9)
	assert.Equal(t, 2, stats.WinCount)

	recent := j.GetRecent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "s2", recent[0].TradeID)
	assert.Equal(t, "run-2", recent[1].RunID)
	assert.Equal(t, "w2", recent[2].Wallet)
}

func TestLatest(t *testing.T) {
	entries := []Entry{
		NewEntry("w", "run-1", realization("s1", 5)),
		NewEntry("w", "run-1", realization("s2", 1)),
		NewEntry("w", "run-2", realization("s1", 4)),
		NewEntry("w", "run-2", realization("s2", 2)),
	}

	got := Latest(entries)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].TradeID)
	assert.Equal(t, "run-2", got[0].RunID)
	assert.InDelta(t, 4.0, got[0].RealizedUSD, 1e-9)
	assert.Equal(t, "s2", got[1].TradeID)
	assert.InDelta(t, 2.0, got[1].RealizedUSD, 1e-9)
	assert.Empty(t, Latest(nil))
}

// internal/journal/journal.go
package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/logger"
)

const (
	DefaultMaxEntries = 1000
	fileName          = "realizations.csv"
	flushInterval     = 30 * time.Second
)

// Journal appends realized sales to a CSV file and keeps the recent ones in memory
type Journal struct {
	mu         sync.RWMutex
	csvWriter  *logger.SafeCSVWriter
	entries    []Entry
	maxEntries int
	logger     *zap.Logger
	path       string

	// latest holds the newest entry per wallet and trade; statistics are
	// computed over it so a replayed sale replaces its earlier row
	latest map[string]Entry
}

// New opens (or creates) the journal file under dir
func New(dir string, maxEntries int, zapLogger *zap.Logger) (*Journal, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	zapLogger = zapLogger.Named("journal")

	path := filepath.Join(dir, fileName)
	csvWriter, err := logger.NewSafeCSVWriter(path, CSVHeaders(), flushInterval, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	zapLogger.Info("Realization journal initialized",
		zap.String("csv_file", path),
		zap.Int("max_memory_entries", maxEntries))

	return &Journal{
		csvWriter:  csvWriter,
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
		logger:     zapLogger,
		path:       path,
		latest:     make(map[string]Entry),
	}, nil
}

// Path returns the CSV file location
func (j *Journal) Path() string {
	return j.path
}

// Attach subscribes the journal to realized sales on bus
func (j *Journal) Attach(bus *events.Bus) events.Subscription {
	return bus.SubscribeFunc(events.SaleRealized, func(_ context.Context, event events.Event) error {
		e, ok := event.(*events.SaleRealizedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T", event)
		}
		return j.Record(NewEntry(e.WalletID, e.RunID, e.Realization))
	})
}

// Record writes the entry and updates statistics
func (j *Journal) Record(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.csvWriter.WriteRecord(entry.ToCSV()); err != nil {
		j.logger.Error("Failed to write realization to CSV",
			zap.String("trade_id", entry.TradeID),
			zap.Error(err))
		return fmt.Errorf("failed to write realization: %w", err)
	}

	key := entry.key()
	if _, replayed := j.latest[key]; replayed {
		for i := range j.entries {
			if j.entries[i].key() == key {
				j.entries = append(j.entries[:i], j.entries[i+1:]...)
				break
			}
		}
	}
	j.latest[key] = entry

	if len(j.entries) >= j.maxEntries {
		j.entries = j.entries[1:]
	}
	j.entries = append(j.entries, entry)

	j.logger.Debug("Realization recorded",
		zap.String("trade_id", entry.TradeID),
		zap.String("wallet", entry.Wallet),
		zap.String("asset", entry.AssetID),
		zap.Float64("realized_usd", entry.RealizedUSD))

	return nil
}

// GetRecent returns up to limit of the newest entries, oldest first
func (j *Journal) GetRecent(limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}

	result := make([]Entry, limit)
	copy(result, j.entries[len(j.entries)-limit:])
	return result
}

// GetByAsset returns the in-memory entries of one asset
func (j *Journal) GetByAsset(assetID string) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []Entry
	for _, e := range j.entries {
		if e.AssetID == assetID {
			result = append(result, e)
		}
	}
	return result
}

// Statistics holds aggregate realization statistics
type Statistics struct {
	TotalSales     int     `json:"total_sales"`
	WinCount       int     `json:"win_count"`
	LossCount      int     `json:"loss_count"`
	BreakEvenCount int     `json:"break_even_count"`
	WinRate        float64 `json:"win_rate"`
	TotalRealized  float64 `json:"total_realized_usd"`
	TotalProceeds  float64 `json:"total_proceeds_usd"`
	AvgWinUSD      float64 `json:"avg_win_usd"`
	AvgLossUSD     float64 `json:"avg_loss_usd"`
	Best           *Entry  `json:"best,omitempty"`
	Worst          *Entry  `json:"worst,omitempty"`
}

// GetStatistics returns realization statistics
func (j *Journal) GetStatistics() Statistics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.statistics()
}

func (j *Journal) statistics() Statistics {
	var (
		stats        Statistics
		totalWinUSD  float64
		totalLossUSD float64
	)
	for _, entry := range j.latest {
		stats.TotalSales++
		stats.TotalRealized += entry.RealizedUSD
		stats.TotalProceeds += entry.ProceedsUSD
		switch {
		case entry.RealizedUSD > 0:
			stats.WinCount++
			totalWinUSD += entry.RealizedUSD
		case entry.RealizedUSD < 0:
			stats.LossCount++
			totalLossUSD += entry.RealizedUSD
		}
		if stats.Best == nil || entry.RealizedUSD > stats.Best.RealizedUSD {
			e := entry
			stats.Best = &e
		}
		if stats.Worst == nil || entry.RealizedUSD < stats.Worst.RealizedUSD {
			e := entry
			stats.Worst = &e
		}
	}

	stats.BreakEvenCount = stats.TotalSales - stats.WinCount - stats.LossCount
	if stats.TotalSales > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(stats.TotalSales) * 100
	}
	if stats.WinCount > 0 {
		stats.AvgWinUSD = totalWinUSD / float64(stats.WinCount)
	}
	if stats.LossCount > 0 {
		stats.AvgLossUSD = totalLossUSD / float64(stats.LossCount)
	}
	return stats
}

// Flush forces a write of buffered records
func (j *Journal) Flush() error {
	return j.csvWriter.Flush()
}

// Close flushes and closes the journal file
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := j.statistics()
	j.logger.Info("Closing realization journal",
		zap.Int("total_sales", stats.TotalSales),
		zap.Float64("total_realized_usd", stats.TotalRealized),
		zap.Float64("win_rate", stats.WinRate))

	return j.csvWriter.Close()
}

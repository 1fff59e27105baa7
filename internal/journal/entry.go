package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

// Entry is one realized sale as written to the journal
type Entry struct {
	TradeID           string    `json:"trade_id"`
	Timestamp         time.Time `json:"timestamp"`
	Wallet            string    `json:"wallet"`
	AssetID           string    `json:"asset_id"`
	Symbol            string    `json:"symbol"`
	Quantity          float64   `json:"quantity"`
	UnmatchedQuantity float64   `json:"unmatched_quantity,omitempty"`
	SalePriceUSD      float64   `json:"sale_price_usd"`
	ProceedsUSD       float64   `json:"proceeds_usd"`
	CostBasisUSD      float64   `json:"cost_basis_usd"`
	RealizedUSD       float64   `json:"realized_usd"`
	PnLPercent        float64   `json:"pnl_percent,omitempty"`
	HoldTime          string    `json:"hold_time,omitempty"`
	LotsConsumed      int       `json:"lots_consumed"`
	RunID             string    `json:"run_id,omitempty"`
}

// NewEntry builds a journal entry from a realization
func NewEntry(walletID, runID string, r pnl.Realization) Entry {
	e := Entry{
		TradeID:           r.TradeID,
		Timestamp:         r.Timestamp,
		Wallet:            walletID,
		AssetID:           r.AssetID,
		Symbol:            r.Symbol,
		Quantity:          r.Quantity,
		UnmatchedQuantity: r.UnmatchedQuantity,
		SalePriceUSD:      r.SaleUnitPriceUSD,
		ProceedsUSD:       r.ProceedsUSD,
		CostBasisUSD:      r.CostBasisUSD,
		RealizedUSD:       r.RealizedUSD,
		LotsConsumed:      len(r.Lots),
		RunID:             runID,
	}
	if r.CostBasisUSD > 0 {
		e.PnLPercent = r.RealizedUSD / r.CostBasisUSD * 100
	}
	if len(r.Lots) > 0 && !r.Lots[0].OpenedAt.IsZero() {
		// Lots are consumed oldest first
		e.HoldTime = CalculateHoldTime(r.Lots[0].OpenedAt, r.Timestamp)
	}
	return e
}

func (e *Entry) key() string {
	return e.Wallet + "/" + e.TradeID
}

// Latest drops superseded rows: when a sale was journaled more than once
// (a rebuild or a replay re-realizes it), the last row wins and keeps the
// position of the first one.
func Latest(entries []Entry) []Entry {
	pos := make(map[string]int, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if i, ok := pos[e.key()]; ok {
			out[i] = e
			continue
		}
		pos[e.key()] = len(out)
		out = append(out, e)
	}
	return out
}

// ToCSV converts the entry to a CSV record
func (e *Entry) ToCSV() []string {
	return []string{
		e.TradeID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Wallet,
		e.AssetID,
		e.Symbol,
		formatFloat(e.Quantity),
		formatFloat(e.UnmatchedQuantity),
		formatFloat(e.SalePriceUSD),
		formatFloat(e.ProceedsUSD),
		formatFloat(e.CostBasisUSD),
		formatFloat(e.RealizedUSD),
		formatPercent(e.PnLPercent),
		e.HoldTime,
		fmt.Sprintf("%d", e.LotsConsumed),
		e.RunID,
	}
}

// CSVHeaders returns the header row for journal CSV files
func CSVHeaders() []string {
	return []string{
		"trade_id",
		"timestamp",
		"wallet",
		"asset_id",
		"symbol",
		"quantity",
		"unmatched_quantity",
		"sale_price_usd",
		"proceeds_usd",
		"cost_basis_usd",
		"realized_usd",
		"pnl_percent",
		"hold_time",
		"lots_consumed",
		"run_id",
	}
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	return fmt.Sprintf("%.9f", f)
}

func formatPercent(f float64) string {
	if f == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f", f)
}

// CalculateHoldTime formats the duration between buy and sell
func CalculateHoldTime(buyTime, sellTime time.Time) string {
	duration := sellTime.Sub(buyTime)
	if duration < 0 {
		duration = 0
	}
	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(duration.Hours()), int(duration.Minutes())%60)
	}
	days := int(duration.Hours() / 24)
	hours := int(duration.Hours()) % 24
	return fmt.Sprintf("%dd%dh", days, hours)
}

// ReadEntries loads a journal CSV written by Journal.
func ReadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(CSVHeaders())
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	entries := make([]Entry, 0, len(records)-1)
	for i, rec := range records[1:] {
		e, err := entryFromCSV(rec)
		if err != nil {
			return nil, fmt.Errorf("journal row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryFromCSV(rec []string) (Entry, error) {
	ts, err := time.Parse(time.RFC3339, rec[1])
	if err != nil {
		return Entry{}, err
	}
	floats := make([]float64, 6)
	for i, col := range rec[5:11] {
		if floats[i], err = strconv.ParseFloat(col, 64); err != nil {
			return Entry{}, err
		}
	}
	var pct float64
	if rec[11] != "" {
		if pct, err = strconv.ParseFloat(rec[11], 64); err != nil {
			return Entry{}, err
		}
	}
	lots, err := strconv.Atoi(rec[13])
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		TradeID:           rec[0],
		Timestamp:         ts,
		Wallet:            rec[2],
		AssetID:           rec[3],
		Symbol:            rec[4],
		Quantity:          floats[0],
		UnmatchedQuantity: floats[1],
		SalePriceUSD:      floats[2],
		ProceedsUSD:       floats[3],
		CostBasisUSD:      floats[4],
		RealizedUSD:       floats[5],
		PnLPercent:        pct,
		HoldTime:          rec[12],
		LotsConsumed:      lots,
		RunID:             rec[14],
	}, nil
}

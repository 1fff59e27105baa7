package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/journal"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ErrNothingToExport is returned when the filters leave no rows.
var ErrNothingToExport = errors.New("nothing matches the export criteria")

// ParseFormat validates a format name.
func ParseFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported format: %s", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format      ExportFormat
	StartTime   time.Time
	EndTime     time.Time
	AssetFilter string     // Filter by asset mint
	SideFilter  trade.Side // SELL keeps realizations only, BUY keeps open lots only
	OutputDir   string
}

// OpenLotRow is one open lot as exported
type OpenLotRow struct {
	Wallet            string    `json:"wallet"`
	AssetID           string    `json:"asset_id"`
	TradeID           string    `json:"trade_id"`
	OpenedAt          time.Time `json:"opened_at"`
	OriginalQuantity  float64   `json:"original_quantity"`
	QuantityRemaining float64   `json:"quantity_remaining"`
	UnitCostUSD       float64   `json:"unit_cost_usd"`
	CostBasisUSD      float64   `json:"cost_basis_usd"`
}

// ToCSV converts the row to a CSV record
func (r *OpenLotRow) ToCSV() []string {
	return []string{
		r.Wallet,
		r.AssetID,
		r.TradeID,
		r.OpenedAt.UTC().Format(time.RFC3339),
		formatFloat(r.OriginalQuantity),
		formatFloat(r.QuantityRemaining),
		formatFloat(r.UnitCostUSD),
		formatFloat(r.CostBasisUSD),
	}
}

// OpenLotHeaders returns the header row for open lot CSV files
func OpenLotHeaders() []string {
	return []string{
		"wallet",
		"asset_id",
		"trade_id",
		"opened_at",
		"original_quantity",
		"quantity_remaining",
		"unit_cost_usd",
		"cost_basis_usd",
	}
}

// Exporter writes realizations and open lots to files
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{
		logger: logger.Named("export"),
		now:    time.Now,
	}
}

// Export writes the filtered data and returns the created files. CSV gets one
// file per row kind, JSON a single document with a summary.
func (e *Exporter) Export(snap *ingest.Snapshot, entries []journal.Entry, options ExportOptions) ([]string, error) {
	if snap == nil {
		return nil, errors.New("snapshot is required")
	}

	sales := e.filterRealizations(entries, options)
	lots := e.filterOpenLots(snap, options)
	if len(sales) == 0 && len(lots) == 0 && len(snap.RealizedPnl) == 0 {
		return nil, ErrNothingToExport
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	stamp := e.now().Format("20060102_150405")
	var paths []string

	switch options.Format {
	case FormatCSV:
		if options.SideFilter != trade.Buy {
			path := filepath.Join(options.OutputDir, e.filename("realizations", snap.WalletID, options, stamp))
			if err := writeCSV(path, journal.CSVHeaders(), len(sales), func(i int) []string { return sales[i].ToCSV() }); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
		if options.SideFilter != trade.Sell {
			path := filepath.Join(options.OutputDir, e.filename("open_lots", snap.WalletID, options, stamp))
			if err := writeCSV(path, OpenLotHeaders(), len(lots), func(i int) []string { return lots[i].ToCSV() }); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	case FormatJSON:
		path := filepath.Join(options.OutputDir, e.filename("pnl", snap.WalletID, options, stamp))
		if err := e.exportToJSON(path, snap, sales, lots); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	default:
		return nil, fmt.Errorf("unsupported format: %s", options.Format)
	}

	e.logger.Info("PnL exported",
		zap.Strings("files", paths),
		zap.Int("realizations", len(sales)),
		zap.Int("open_lots", len(lots)),
		zap.String("format", string(options.Format)))

	return paths, nil
}

// filterRealizations keeps the newest row of every sale, applies filters and sorts by time
func (e *Exporter) filterRealizations(entries []journal.Entry, options ExportOptions) []journal.Entry {
	if options.SideFilter == trade.Buy {
		return nil
	}
	var filtered []journal.Entry
	for _, entry := range journal.Latest(entries) {
		if !inRange(entry.Timestamp, options) {
			continue
		}
		if options.AssetFilter != "" && entry.AssetID != options.AssetFilter {
			continue
		}
		filtered = append(filtered, entry)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})
	return filtered
}

// filterOpenLots flattens open lots in FIFO order per asset
func (e *Exporter) filterOpenLots(snap *ingest.Snapshot, options ExportOptions) []OpenLotRow {
	if options.SideFilter == trade.Sell {
		return nil
	}
	assets := make([]string, 0, len(snap.OpenLots))
	for asset := range snap.OpenLots {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	var rows []OpenLotRow
	for _, asset := range assets {
		if options.AssetFilter != "" && asset != options.AssetFilter {
			continue
		}
		for _, lot := range snap.OpenLots[asset] {
			if !inRange(lot.OpenedAt, options) {
				continue
			}
			rows = append(rows, OpenLotRow{
				Wallet:            snap.WalletID,
				AssetID:           asset,
				TradeID:           lot.TradeID,
				OpenedAt:          lot.OpenedAt,
				OriginalQuantity:  lot.OriginalQuantity,
				QuantityRemaining: lot.QuantityRemaining,
				UnitCostUSD:       lot.UnitCostUSD,
				CostBasisUSD:      lot.CostBasisUSD(),
			})
		}
	}
	return rows
}

func inRange(ts time.Time, options ExportOptions) bool {
	if !options.StartTime.IsZero() && ts.Before(options.StartTime) {
		return false
	}
	if !options.EndTime.IsZero() && ts.After(options.EndTime) {
		return false
	}
	return true
}

// filename creates a filename based on export options
func (e *Exporter) filename(kind, wallet string, options ExportOptions, stamp string) string {
	prefix := kind
	if len(wallet) >= 8 {
		prefix += "_" + wallet[:8]
	}
	if len(options.AssetFilter) >= 8 {
		prefix += "_" + options.AssetFilter[:8]
	} else if options.AssetFilter != "" {
		prefix += "_" + options.AssetFilter
	}
	return fmt.Sprintf("%s_%s.%s", prefix, stamp, options.Format)
}

func writeCSV(path string, header []string, n int, row func(int) []string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// exportToJSON writes one document with metadata
func (e *Exporter) exportToJSON(path string, snap *ingest.Snapshot, sales []journal.Entry, lots []OpenLotRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := struct {
		ExportTime   time.Time                  `json:"export_time"`
		Wallet       string                     `json:"wallet"`
		Version      int64                      `json:"version"`
		RealizedPnl  map[string]decimal.Decimal `json:"realized_pnl"`
		Summary      ExportSummary              `json:"summary"`
		Realizations []journal.Entry            `json:"realizations"`
		OpenLots     []OpenLotRow               `json:"open_lots"`
	}{
		ExportTime:   e.now().UTC(),
		Wallet:       snap.WalletID,
		Version:      snap.Version,
		RealizedPnl:  pnl.RoundMap(snap.RealizedPnl),
		Summary:      CalculateSummary(snap, sales, lots),
		Realizations: sales,
		OpenLots:     lots,
	}

	if err := encoder.Encode(exportData); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportSummary contains summary statistics for an export
type ExportSummary struct {
	SaleCount        int             `json:"sale_count"`
	WinCount         int             `json:"win_count"`
	LossCount        int             `json:"loss_count"`
	WinRate          float64         `json:"win_rate"`
	ExportedRealized decimal.Decimal `json:"exported_realized_usd"`
	TotalRealized    decimal.Decimal `json:"total_realized_usd"`
	TotalProceeds    decimal.Decimal `json:"total_proceeds_usd"`
	UnmatchedSold    float64         `json:"unmatched_sold_quantity"`
	UniqueAssets     int             `json:"unique_assets"`
	OpenLotCount     int             `json:"open_lot_count"`
	OpenCostBasis    decimal.Decimal `json:"open_cost_basis_usd"`
	StartDate        time.Time       `json:"start_date,omitempty"`
	EndDate          time.Time       `json:"end_date,omitempty"`
}

// CalculateSummary aggregates the exported rows. TotalRealized always comes
// from the snapshot, ExportedRealized only from the filtered sales.
func CalculateSummary(snap *ingest.Snapshot, sales []journal.Entry, lots []OpenLotRow) ExportSummary {
	summary := ExportSummary{
		SaleCount:     len(sales),
		OpenLotCount:  len(lots),
		TotalRealized: pnl.RoundUSD(snap.TotalRealized()),
	}

	assets := make(map[string]bool)
	var realized, proceeds, openCost float64
	for _, s := range sales {
		assets[s.AssetID] = true
		realized += s.RealizedUSD
		proceeds += s.ProceedsUSD
		summary.UnmatchedSold += s.UnmatchedQuantity
		switch {
		case s.RealizedUSD > 0:
			summary.WinCount++
		case s.RealizedUSD < 0:
			summary.LossCount++
		}
	}
	for _, l := range lots {
		assets[l.AssetID] = true
		openCost += l.CostBasisUSD
	}

	summary.UniqueAssets = len(assets)
	summary.ExportedRealized = pnl.RoundUSD(realized)
	summary.TotalProceeds = pnl.RoundUSD(proceeds)
	summary.OpenCostBasis = pnl.RoundUSD(openCost)
	if len(sales) > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(len(sales)) * 100
		summary.StartDate = sales[0].Timestamp
		summary.EndDate = sales[len(sales)-1].Timestamp
	}
	return summary
}

// DailyReport represents the realizations of one day
type DailyReport struct {
	Date            time.Time       `json:"date"`
	Wallet          string          `json:"wallet"`
	SaleCount       int             `json:"sale_count"`
	RealizedUSD     decimal.Decimal `json:"realized_usd"`
	HourlyBreakdown []HourlyStats   `json:"hourly_breakdown"`
	Realizations    []journal.Entry `json:"realizations"`
}

// HourlyStats represents realization statistics for an hour
type HourlyStats struct {
	Hour        int     `json:"hour"`
	SaleCount   int     `json:"sale_count"`
	ProceedsUSD float64 `json:"proceeds_usd"`
	RealizedUSD float64 `json:"realized_usd"`
}

// ExportDailyReport writes the realizations of date's UTC day. It returns an
// empty path when there were none.
func (e *Exporter) ExportDailyReport(walletID string, entries []journal.Entry, date time.Time, outputDir string) (string, error) {
	date = date.UTC()
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	options := ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24*time.Hour - time.Nanosecond),
	}

	filtered := e.filterRealizations(entries, options)
	if len(filtered) == 0 {
		e.logger.Info("No realizations for daily report", zap.Time("date", startOfDay))
		return "", nil
	}

	var realized float64
	for _, s := range filtered {
		realized += s.RealizedUSD
	}
	report := DailyReport{
		Date:            startOfDay,
		Wallet:          walletID,
		SaleCount:       len(filtered),
		RealizedUSD:     pnl.RoundUSD(realized),
		HourlyBreakdown: calculateHourlyBreakdown(filtered),
		Realizations:    filtered,
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))
	file, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	e.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("realizations", len(filtered)))

	return outputPath, nil
}

func calculateHourlyBreakdown(entries []journal.Entry) []HourlyStats {
	hourly := make(map[int]*HourlyStats)
	for _, s := range entries {
		hour := s.Timestamp.UTC().Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour}
			hourly[hour] = stats
		}
		stats.SaleCount++
		stats.ProceedsUSD += s.ProceedsUSD
		stats.RealizedUSD += s.RealizedUSD
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}

func formatFloat(f float64) string {
	return decimal.NewFromFloat(f).String()
}

// ====================================
// File: cmd/pnl/main.go
// ====================================
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/app"
	"github.com/rovshanmuradov/solana-pnl/internal/config"
	"github.com/rovshanmuradov/solana-pnl/internal/export"
	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
	"github.com/rovshanmuradov/solana-pnl/internal/utils"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/logger"
)

const usage = `Usage: pnl [flags] <command> [wallet]

Commands:
  run       poll all configured wallets until interrupted (default)
  once      poll all configured wallets once
  state     print the committed state of a wallet
  rebuild   refetch the full history of a wallet and recompute it
  snapshot  print on-chain balances of a wallet with USD values
  export    write realizations and open lots to files
  report    write the daily realization report of a wallet (-date, default today)

Flags:
`

func main() {
	configPath := flag.String("config", "", "Path to config file (json/yaml/toml)")
	format := flag.String("format", "csv", "Export format: csv or json")
	side := flag.String("side", "", "Export only BUY (open lots) or SELL (realizations)")
	from := flag.String("from", "", "Export realizations since date (2006-01-02)")
	to := flag.String("to", "", "Export realizations before date (2006-01-02)")
	asset := flag.String("asset", "", "Export only this asset mint")
	date := flag.String("date", "", "Daily report date (2006-01-02), UTC")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// .env не обязателен
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	if cfg.LogFile != "" {
		logCfg.LogFile = cfg.LogFile
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log.Logger)
	if err != nil {
		log.Fatal("💥 Failed to initialize", zap.Error(err))
	}

	command := flag.Arg(0)
	if command == "" {
		command = "run"
	}

	err = dispatch(ctx, a, command, flag.Arg(1), exportFlags{
		format: *format, side: *side, from: *from, to: *to, asset: *asset, date: *date,
	})

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	utils.HandleError(log.Logger, a.Close(closeCtx), "Shutdown finished with errors")

	if err != nil {
		log.LogError("Command failed", err, zap.String("command", command))
		_ = log.Sync()
		os.Exit(1)
	}
}

type exportFlags struct {
	format, side, from, to, asset, date string
}

func dispatch(ctx context.Context, a *app.App, command, walletArg string, ef exportFlags) error {
	switch command {
	case "run":
		return a.Run(ctx)
	case "once":
		return a.PollOnce(ctx)
	}

	walletID, err := pickWallet(a.Config(), walletArg)
	if err != nil {
		return err
	}

	switch command {
	case "state":
		snap, err := a.State(ctx, walletID)
		if err != nil {
			return err
		}
		return printJSON(newStateView(snap))
	case "rebuild":
		res, err := a.Rebuild(ctx, walletID)
		if err != nil {
			return err
		}
		return printJSON(res)
	case "snapshot":
		snap, err := a.Snapshot(ctx, walletID)
		if err != nil {
			return err
		}
		return printJSON(snap)
	case "export":
		opts, err := ef.options()
		if err != nil {
			return err
		}
		paths, err := a.Export(ctx, walletID, opts)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	case "report":
		day, err := ef.reportDate(time.Now())
		if err != nil {
			return err
		}
		path, err := a.DailyReport(ctx, walletID, day)
		if err != nil {
			return err
		}
		if path == "" {
			fmt.Println("no realizations on", day.Format(time.DateOnly))
			return nil
		}
		fmt.Println(path)
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

type stateView struct {
	Wallet        string                     `json:"wallet"`
	Version       int64                      `json:"version"`
	RealizedPnl   map[string]decimal.Decimal `json:"realized_pnl"`
	TotalRealized string                     `json:"total_realized_usd"`
	TotalBought   string                     `json:"total_bought_usd"`
	Assets        map[string]pnl.RealizedPnl `json:"assets"`
	OpenLots      map[string][]ledger.Lot    `json:"open_lots"`
}

func newStateView(snap *ingest.Snapshot) stateView {
	return stateView{
		Wallet:        snap.WalletID,
		Version:       snap.Version,
		RealizedPnl:   pnl.RoundMap(snap.RealizedPnl),
		TotalRealized: pnl.FormatUSD(snap.TotalRealized()),
		TotalBought:   pnl.FormatUSD(snap.TotalBoughtUSD()),
		Assets:        snap.Details,
		OpenLots:      snap.OpenLots,
	}
}

// pickWallet returns arg or the only configured wallet.
func pickWallet(cfg *config.Config, arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if len(cfg.Wallets) == 1 {
		return cfg.Wallets[0], nil
	}
	return "", errors.New("wallet argument is required when several wallets are configured")
}

func (ef exportFlags) reportDate(now time.Time) (time.Time, error) {
	if ef.date == "" {
		return now.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, ef.date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -date: %w", err)
	}
	return t, nil
}

func (ef exportFlags) options() (export.ExportOptions, error) {
	format, err := export.ParseFormat(ef.format)
	if err != nil {
		return export.ExportOptions{}, err
	}
	opts := export.ExportOptions{Format: format, AssetFilter: ef.asset}

	switch ef.side {
	case "":
	case "buy", "BUY":
		opts.SideFilter = trade.Buy
	case "sell", "SELL":
		opts.SideFilter = trade.Sell
	default:
		return opts, fmt.Errorf("invalid side %q", ef.side)
	}

	if ef.from != "" {
		t, err := time.Parse(time.DateOnly, ef.from)
		if err != nil {
			return opts, fmt.Errorf("invalid -from: %w", err)
		}
		opts.StartTime = t
	}
	if ef.to != "" {
		t, err := time.Parse(time.DateOnly, ef.to)
		if err != nil {
			return opts, fmt.Errorf("invalid -to: %w", err)
		}
		opts.EndTime = t
	}
	return opts, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

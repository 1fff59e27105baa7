// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-pnl/internal/config"
	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/export"
	"github.com/rovshanmuradov/solana-pnl/internal/feed"
	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/journal"
	"github.com/rovshanmuradov/solana-pnl/internal/price"
	"github.com/rovshanmuradov/solana-pnl/internal/publisher"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
	ulog "github.com/rovshanmuradov/solana-pnl/internal/utils/logger"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
	"github.com/rovshanmuradov/solana-pnl/internal/wallet"
)

const busBufferSize = 1024

// App wires the ingestion pipeline and its sinks.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	Store      storage.Store
	Bus        *events.Bus
	Metrics    *metrics.Collector
	Controller *ingest.Controller
	Source     ingest.TradeSource
	Poller     *ingest.Poller
	Journal    *journal.Journal
	Publisher  *publisher.KafkaPublisher
	Wallets    *wallet.Service
	Exporter   *export.Exporter

	shutdown *ShutdownHandler
}

// Option customizes New.
type Option func(*options)

type options struct {
	store    storage.Store
	source   ingest.TradeSource
	balances wallet.BalanceReader
	prices   wallet.PriceSource
	onResult func(ingest.PollResult)
}

// WithStore replaces the configured store.
func WithStore(s storage.Store) Option {
	return func(o *options) { o.store = s }
}

// WithTradeSource replaces the SolanaTracker client.
func WithTradeSource(s ingest.TradeSource) Option {
	return func(o *options) { o.source = s }
}

// WithBalances replaces the RPC balance reader.
func WithBalances(b wallet.BalanceReader) Option {
	return func(o *options) { o.balances = b }
}

// WithPrices replaces the DexScreener client.
func WithPrices(p wallet.PriceSource) Option {
	return func(o *options) { o.prices = p }
}

// WithPollHook is called after every wallet poll.
func WithPollHook(fn func(ingest.PollResult)) Option {
	return func(o *options) { o.onResult = fn }
}

// New builds every component from cfg. Close must be called to release them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		logger:   logger.Named("app"),
		Metrics:  metrics.NewCollector(),
		Exporter: export.NewExporter(logger),
		shutdown: NewShutdownHandler(logger, 30*time.Second),
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = OpenStore(ctx, cfg.Store, logger); err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
		}
	}
	a.Store = store
	a.shutdown.Add("store", store)

	a.Bus = events.NewBus(logger, busBufferSize)

	if cfg.JournalDir != "" {
		j, err := journal.New(cfg.JournalDir, journal.DefaultMaxEntries, logger)
		if err != nil {
			_ = a.Bus.Shutdown(ctx)
			_ = a.Close(ctx)
			return nil, err
		}
		a.Journal = j
		a.shutdown.Add("journal", j)
		j.Attach(a.Bus)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := publisher.NewKafkaPublisher(publisher.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		}, logger)
		if err != nil {
			_ = a.Bus.Shutdown(ctx)
			_ = a.Close(ctx)
			return nil, err
		}
		a.Publisher = p
		a.shutdown.Add("kafka", p)
		p.Attach(a.Bus)
	}

	// Шина закрывается первой, чтобы journal и kafka получили все события
	a.shutdown.AddFunc("event_bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Bus.Shutdown(ctx)
	})

	a.Controller = ingest.NewController(store, logger,
		ingest.WithNormalizer(trade.NewNormalizer(cfg.BaseAssets...)),
		ingest.WithUnmatchedPolicy(cfg.Policy()),
		ingest.WithPublisher(a.Bus),
		ingest.WithMetrics(a.Metrics),
	)

	a.Source = o.source
	if a.Source == nil {
		a.Source = feed.NewClient(feed.Config{
			BaseURL:           cfg.SolanaTrackerURL,
			APIKey:            cfg.SolanaTrackerAPIKey,
			RequestsPerMinute: cfg.RequestsPerMinute,
			MaxRetries:        cfg.Retries,
		}, logger, a.Metrics)
	}

	onResult := o.onResult
	a.Poller = ingest.NewPoller(a.Source, a.Controller, ingest.PollerConfig{
		Wallets:  cfg.Wallets,
		Interval: cfg.PollInterval(),
		Workers:  cfg.Workers,
		OnResult: func(r ingest.PollResult) {
			a.logPoll(r)
			if onResult != nil {
				onResult(r)
			}
		},
	}, logger)

	balances := o.balances
	if balances == nil {
		balances = solbc.NewClient(cfg.RPCURL, logger)
	}
	prices := o.prices
	if prices == nil {
		prices = price.NewClient(price.Config{
			BaseURL:    cfg.DexScreenerURL,
			MaxRetries: cfg.Retries,
		}, logger, a.Metrics)
	}
	a.Wallets = wallet.NewService(balances, prices, logger)

	a.logger.Info("🚀 Application initialized",
		zap.Strings("wallets", cfg.Wallets),
		zap.String("store", cfg.Store.Driver),
		zap.String("unmatched_policy", string(cfg.Policy())),
		zap.Bool("kafka", a.Publisher != nil),
		zap.Bool("journal", a.Journal != nil))

	return a, nil
}

func (a *App) logPoll(r ingest.PollResult) {
	if r.Err != nil {
		var perr *ingest.PersistenceError
		if errors.As(r.Err, &perr) {
			a.logger.Error("State not saved, results are stale",
				zap.String("wallet", r.WalletID),
				zap.Error(r.Err))
			return
		}
		a.logger.Warn("Wallet poll failed",
			zap.String("wallet", r.WalletID),
			zap.Error(r.Err))
		return
	}
	if r.Result != nil && r.Result.Committed {
		a.logger.Info("Wallet updated",
			zap.String("wallet", r.WalletID),
			zap.Int64("version", r.Result.Version),
			zap.Int("applied", r.Result.Applied),
			zap.Int("warnings", len(r.Result.Warnings)))
	}
}

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Run serves metrics and polls until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.MetricsAddr != "" {
		srv := a.metricsServer()
		log := ulog.WithComponent(a.logger, "metrics_server")
		go func() {
			log.Info("Metrics server listening", zap.String("addr", a.cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", zap.Error(err))
			}
		}()
		a.shutdown.AddFunc("metrics_server", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	return a.Poller.Run(ctx)
}

func (a *App) metricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// PollOnce runs a single poll over every configured wallet.
func (a *App) PollOnce(ctx context.Context) error {
	return a.Poller.PollOnce(ctx)
}

// State returns the committed state of walletID.
func (a *App) State(ctx context.Context, walletID string) (*ingest.Snapshot, error) {
	return a.Controller.GetState(ctx, walletID)
}

// Rebuild refetches the full history of walletID and recomputes its state.
func (a *App) Rebuild(ctx context.Context, walletID string) (*ingest.Result, error) {
	raws, err := a.Source.FetchTrades(ctx, walletID)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	return a.Controller.Rebuild(ctx, walletID, raws)
}

// Export writes the state of walletID and its journaled realizations.
func (a *App) Export(ctx context.Context, walletID string, opts export.ExportOptions) ([]string, error) {
	snap, err := a.State(ctx, walletID)
	if err != nil {
		return nil, err
	}

	entries, err := a.journalEntries(walletID)
	if err != nil {
		return nil, err
	}

	if opts.OutputDir == "" {
		opts.OutputDir = a.cfg.ExportDir
	}
	return a.Exporter.Export(snap, entries, opts)
}

// DailyReport writes the realizations of walletID on date's UTC day to the
// export directory. The path is empty when there were none.
func (a *App) DailyReport(ctx context.Context, walletID string, date time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entries, err := a.journalEntries(walletID)
	if err != nil {
		return "", err
	}
	return a.Exporter.ExportDailyReport(walletID, entries, date, a.cfg.ExportDir)
}

// journalEntries reads the realizations of walletID from the journal file.
// Sales journaled again by a rebuild or replay keep only their newest row.
func (a *App) journalEntries(walletID string) ([]journal.Entry, error) {
	path := filepath.Join(a.cfg.JournalDir, "realizations.csv")
	if a.Journal != nil {
		if err := a.Journal.Flush(); err != nil {
			return nil, err
		}
		path = a.Journal.Path()
	}

	all, err := journal.ReadEntries(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	entries := all[:0]
	for _, e := range all {
		if e.Wallet == walletID {
			entries = append(entries, e)
		}
	}
	return journal.Latest(entries), nil
}

// Snapshot returns on-chain balances of walletID with USD values.
func (a *App) Snapshot(ctx context.Context, walletID string) (*wallet.Snapshot, error) {
	return a.Wallets.Snapshot(ctx, walletID)
}

// Close releases every component in reverse start order.
func (a *App) Close(ctx context.Context) error {
	return a.shutdown.Shutdown(ctx)
}

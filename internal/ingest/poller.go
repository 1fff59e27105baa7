// internal/ingest/poller.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-pnl/internal/trade"
)

// TradeSource fetches the raw trades of a wallet.
type TradeSource interface {
	FetchTrades(ctx context.Context, owner string) ([]trade.RawTrade, error)
}

// PollResult is delivered to the poller's callback after each wallet run.
type PollResult struct {
	WalletID string
	Result   *Result
	Err      error
}

// Poller periodically fetches trades for a set of wallets and ingests them.
type Poller struct {
	source     TradeSource
	controller *Controller
	wallets    []string
	interval   time.Duration
	workers    int
	logger     *zap.Logger
	onResult   func(PollResult)
}

// PollerConfig holds poller settings.
type PollerConfig struct {
	Wallets  []string
	Interval time.Duration
	Workers  int
	OnResult func(PollResult)
}

// NewPoller creates a poller.
func NewPoller(source TradeSource, controller *Controller, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Poller{
		source:     source,
		controller: controller,
		wallets:    cfg.Wallets,
		interval:   cfg.Interval,
		workers:    cfg.Workers,
		logger:     logger.Named("poller"),
		onResult:   cfg.OnResult,
	}
}

// Run polls until ctx is cancelled. Failures are logged and retried on the
// next tick.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Poller started",
		zap.Strings("wallets", p.wallets),
		zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("Poll finished with errors", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			p.logger.Info("Poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches and ingests every wallet once. One wallet failing does not
// stop the others; all errors are returned joined.
func (p *Poller) PollOnce(ctx context.Context) error {
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, wallet := range p.wallets {
		wallet := wallet
		g.Go(func() error {
			res, err := p.pollWallet(gCtx, wallet)
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("wallet %s: %w", wallet, err))
				mu.Unlock()
			}
			if p.onResult != nil {
				p.onResult(PollResult{WalletID: wallet, Result: res, Err: err})
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

func (p *Poller) pollWallet(ctx context.Context, wallet string) (*Result, error) {
	raws, err := p.source.FetchTrades(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("fetch trades: %w", err)
	}
	return p.controller.Ingest(ctx, wallet, raws)
}

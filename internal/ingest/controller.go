// internal/ingest/controller.go
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
	ulog "github.com/rovshanmuradov/solana-pnl/internal/utils/logger"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
)

const defaultPublishTimeout = 10 * time.Second

// Publisher receives events after a run commits or fails. PublishWait may
// block until the event is queued or ctx is done.
type Publisher interface {
	PublishWait(ctx context.Context, event events.Event) error
}

// Controller applies trade batches to per-wallet ledgers. Runs for the same
// wallet are serialized; the store's version check guards against writers
// in other processes.
type Controller struct {
	store      storage.Store
	normalizer *trade.Normalizer
	policy     pnl.UnmatchedPolicy
	publisher  Publisher
	metrics    *metrics.Collector
	logger     *zap.Logger
	now        func() time.Time

	publishTimeout time.Duration

	locks sync.Map // walletID -> *sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithNormalizer replaces the default SOL-based normalizer.
func WithNormalizer(n *trade.Normalizer) Option {
	return func(c *Controller) { c.normalizer = n }
}

// WithUnmatchedPolicy sets how oversold quantity is booked.
func WithUnmatchedPolicy(p pnl.UnmatchedPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithPublishTimeout bounds how long a committed run waits for room on the
// event bus per event.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Controller) { c.publishTimeout = d }
}

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller over store.
func NewController(store storage.Store, logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:      store,
		normalizer: trade.NewNormalizer(),
		policy:     pnl.UnmatchedIgnore,
		logger:     logger.Named("ingest"),
		now:        func() time.Time { return time.Now().UTC() },

		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) lock(walletID string) func() {
	v, _ := c.locks.LoadOrStore(walletID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// run is the working copy of one wallet's state during a batch.
type run struct {
	book        *ledger.Ledger
	acc         *pnl.Accumulator
	processed   map[string]struct{}
	applied     []string
	history     []trade.Trade
	lastTradeAt time.Time
}

func newRun(state *models.WalletState) *run {
	r := &run{
		book:        ledger.FromLots(state.Lots),
		acc:         pnl.FromTotals(state.Realized),
		processed:   make(map[string]struct{}, len(state.ProcessedIDs)),
		history:     append([]trade.Trade(nil), state.History...),
		lastTradeAt: state.LastTradeAt,
	}
	for _, id := range state.ProcessedIDs {
		r.processed[id] = struct{}{}
	}
	return r
}

// Ingest applies the new trades of rawTrades to the wallet and commits the
// result as one unit. Replaying trades that were already applied is a no-op.
// A new trade older than the last applied one is merged by replaying the
// stored history together with the batch.
func (c *Controller) Ingest(ctx context.Context, walletID string, rawTrades []trade.RawTrade) (*Result, error) {
	return c.ingest(ctx, walletID, rawTrades, false)
}

// Rebuild discards the committed ledger and replays rawTrades from scratch.
// Use it when the feed delivers a trade older than ones already applied.
func (c *Controller) Rebuild(ctx context.Context, walletID string, rawTrades []trade.RawTrade) (*Result, error) {
	return c.ingest(ctx, walletID, rawTrades, true)
}

func (c *Controller) ingest(ctx context.Context, walletID string, rawTrades []trade.RawTrade, rebuild bool) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()
	log := ulog.WithRun(c.logger, runID).With(zap.String("wallet", walletID))

	unlock := c.lock(walletID)
	defer unlock()

	state, err := c.store.Load(ctx, walletID)
	if err != nil {
		return nil, c.fail(ctx, log, walletID, runID, "load", err, start)
	}
	if state == nil {
		state = models.NewWalletState(walletID)
	}

	base := state
	if rebuild {
		base = models.NewWalletState(walletID)
	}

	w := newRun(base)
	res := &Result{
		WalletID:          walletID,
		RunID:             runID,
		UnmatchedQuantity: make(map[string]float64),
	}

	pending := c.filter(walletID, rawTrades, w, res)

	if !rebuild {
		if late := lateTrades(pending, state.LastTradeAt); len(late) > 0 {
			res.Replayed = state.Replayable()
			c.warnLate(log, late, state.LastTradeAt, res)
			if res.Replayed {
				base = models.NewWalletState(walletID)
				w = newRun(base)
				pending = append(append([]trade.Trade(nil), state.History...), pending...)
				for i := range pending {
					pending[i].Seq = i
				}
			}
		}
	}

	// FIFO matching depends on buys being applied before the sells that consume them.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	for _, tr := range pending {
		c.apply(tr, w, res)
	}

	if res.Applied == 0 && !rebuild {
		res.Version = state.Version
		res.RealizedPnl = w.acc.Realized()
		res.OpenLots = w.book.OpenLots()
		c.metrics.RecordIngest(walletID, c.outcome(res, w, false), time.Since(start))
		log.Debug("Nothing new to apply",
			zap.Int("received", len(rawTrades)),
			zap.Int("duplicates", res.Duplicates),
			zap.Int("skipped", res.Skipped))
		return res, nil
	}

	next := &models.WalletState{
		WalletID:     walletID,
		Version:      state.Version + 1,
		Lots:         w.book.OpenLots(),
		Realized:     w.acc.Totals(),
		ProcessedIDs: append(append([]string(nil), base.ProcessedIDs...), w.applied...),
		UpdatedAt:    c.now(),
		History:      w.history,
		LastTradeAt:  w.lastTradeAt,
	}
	if err := c.store.Save(ctx, walletID, next, state.Version); err != nil {
		return nil, c.fail(ctx, log, walletID, runID, "save", err, start)
	}

	res.Committed = true
	res.Version = next.Version
	res.RealizedPnl = w.acc.Realized()
	res.OpenLots = next.Lots

	duration := time.Since(start)
	c.metrics.RecordIngest(walletID, c.outcome(res, w, true), duration)
	c.publishCommitted(ctx, log, walletID, runID, res, w.acc.Total())

	log.Info("Batch committed",
		zap.Int64("version", res.Version),
		zap.Bool("rebuild", rebuild),
		zap.Bool("replayed", res.Replayed),
		zap.Int("applied", res.Applied),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("skipped", res.Skipped),
		zap.Int("warnings", len(res.Warnings)),
		zap.Float64("realized_usd", w.acc.Total()),
		zap.Duration("duration", duration))

	return res, nil
}

func (c *Controller) outcome(res *Result, w *run, committed bool) metrics.IngestOutcome {
	return metrics.IngestOutcome{
		Applied:    res.Applied,
		Duplicates: res.Duplicates,
		Skipped:    res.Skipped,
		Warnings:   res.WarningCounts(),
		Realized:   w.acc.Total(),
		Committed:  committed,
		Replayed:   res.Replayed,
	}
}

// lateTrades returns the trades of the batch older than the last applied one.
func lateTrades(pending []trade.Trade, lastTradeAt time.Time) []trade.Trade {
	if lastTradeAt.IsZero() {
		return nil
	}
	var late []trade.Trade
	for _, tr := range pending {
		if tr.Timestamp.Before(lastTradeAt) {
			late = append(late, tr)
		}
	}
	return late
}

func (c *Controller) warnLate(log *zap.Logger, late []trade.Trade, lastTradeAt time.Time, res *Result) {
	for _, tr := range late {
		msg := fmt.Sprintf("trade at %s predates last applied trade at %s",
			tr.Timestamp.Format(time.RFC3339), lastTradeAt.Format(time.RFC3339))
		if res.Replayed {
			msg += "; history replayed"
		} else {
			msg += "; applied out of order"
		}
		res.Warnings = append(res.Warnings, Warning{
			Kind:    WarningOutOfOrder,
			TradeID: tr.ID,
			AssetID: tr.AssetID,
			Message: msg,
		})
	}
	log.Warn("Late trades in batch",
		zap.Int("late", len(late)),
		zap.Time("last_trade_at", lastTradeAt),
		zap.Bool("replayed", res.Replayed))
}

// filter normalizes the batch and drops trades that were already applied
// or repeat an id seen earlier in the same batch.
func (c *Controller) filter(walletID string, rawTrades []trade.RawTrade, w *run, res *Result) []trade.Trade {
	pending := make([]trade.Trade, 0, len(rawTrades))
	seen := make(map[string]struct{}, len(rawTrades))

	for i, raw := range rawTrades {
		tr, err := c.normalizer.Normalize(walletID, raw)
		if err != nil {
			res.Skipped++
			res.Warnings = append(res.Warnings, Warning{
				Kind:    WarningMalformed,
				TradeID: raw.Tx,
				Message: err.Error(),
			})
			c.logger.Warn("Skipping malformed trade",
				zap.String("wallet", walletID),
				zap.String("tx", raw.Tx),
				zap.Error(err))
			continue
		}

		if _, done := w.processed[tr.ID]; done {
			res.Duplicates++
			continue
		}
		if _, dup := seen[tr.ID]; dup {
			res.Duplicates++
			continue
		}
		seen[tr.ID] = struct{}{}

		tr.Seq = i
		pending = append(pending, tr)
	}
	return pending
}

func (c *Controller) apply(tr trade.Trade, w *run, res *Result) {
	switch tr.Side {
	case trade.Buy:
		if err := w.book.OpenLot(tr.AssetID, tr.Quantity, tr.UnitPriceUSD, tr.Timestamp, tr.ID); err != nil {
			c.skipInvalid(tr, err, res)
			return
		}
		w.acc.ApplyBuy(tr.AssetID, tr.Quantity, tr.ValueUSD)

	case trade.Sell:
		consumed, err := w.book.Consume(tr.AssetID, tr.Quantity)
		if err != nil {
			c.skipInvalid(tr, err, res)
			return
		}

		r := w.acc.ApplySale(tr.AssetID, consumed.Taken, tr.UnitPriceUSD)
		r.TradeID = tr.ID
		r.Symbol = tr.Symbol
		r.Timestamp = tr.Timestamp

		if short := consumed.Shortfall; short != nil {
			w.acc.RecordUnmatched(&r, short.Unmatched, c.policy)
			res.UnmatchedQuantity[tr.AssetID] += short.Unmatched
			res.Warnings = append(res.Warnings, Warning{
				Kind:              WarningInsufficientInventory,
				TradeID:           tr.ID,
				AssetID:           tr.AssetID,
				UnmatchedQuantity: short.Unmatched,
				Message:           short.String(),
			})
		}
		res.Realizations = append(res.Realizations, r)

	default:
		c.skipInvalid(tr, &trade.MalformedTradeError{TradeID: tr.ID, Reason: "unknown side"}, res)
		return
	}

	w.processed[tr.ID] = struct{}{}
	w.applied = append(w.applied, tr.ID)
	w.history = append(w.history, tr)
	if tr.Timestamp.After(w.lastTradeAt) {
		w.lastTradeAt = tr.Timestamp
	}
	res.Applied++
}

func (c *Controller) skipInvalid(tr trade.Trade, err error, res *Result) {
	res.Skipped++
	res.Warnings = append(res.Warnings, Warning{
		Kind:    WarningInvalidQuantity,
		TradeID: tr.ID,
		AssetID: tr.AssetID,
		Message: err.Error(),
	})
	c.logger.Warn("Skipping trade rejected by ledger",
		zap.String("tx", tr.ID),
		zap.String("asset", tr.AssetID),
		zap.Error(err))
}

func (c *Controller) fail(ctx context.Context, log *zap.Logger, walletID, runID, op string, err error, start time.Time) error {
	pErr := &PersistenceError{WalletID: walletID, Op: op, Err: err}

	c.metrics.RecordIngestFailure(walletID, time.Since(start))
	c.publish(ctx, log, &events.IngestFailedEvent{
		BaseEvent: events.NewBase(events.IngestFailed, walletID, runID),
		Error:     pErr,
	})

	log.Error("Ingestion aborted, nothing committed", zap.String("op", op), zap.Error(err))
	return pErr
}

// publish hands one event to the publisher. The state is already decided
// when this runs, so cancellation of the run's ctx does not cut it short.
func (c *Controller) publish(ctx context.Context, log *zap.Logger, event events.Event) {
	if c.publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.publishTimeout)
	defer cancel()

	if err := c.publisher.PublishWait(pctx, event); err != nil {
		c.metrics.RecordEventFailure(string(event.Type()))
		log.Warn("Event not published",
			zap.String("event_type", string(event.Type())),
			zap.Error(err))
	}
}

func (c *Controller) publishCommitted(ctx context.Context, log *zap.Logger, walletID, runID string, res *Result, total float64) {
	if c.publisher == nil {
		return
	}

	for _, r := range res.Realizations {
		c.publish(ctx, log, &events.SaleRealizedEvent{
			BaseEvent:   events.NewBase(events.SaleRealized, walletID, runID),
			Realization: r,
		})
		if r.UnmatchedQuantity > 0 {
			c.publish(ctx, log, &events.InventoryShortfallEvent{
				BaseEvent: events.NewBase(events.InventoryShortfall, walletID, runID),
				TradeID:   r.TradeID,
				AssetID:   r.AssetID,
				Requested: r.Quantity,
				Unmatched: r.UnmatchedQuantity,
			})
		}
	}

	c.publish(ctx, log, &events.IngestCompletedEvent{
		BaseEvent:    events.NewBase(events.IngestCompleted, walletID, runID),
		Version:      res.Version,
		Applied:      res.Applied,
		Duplicates:   res.Duplicates,
		Skipped:      res.Skipped,
		Warnings:     len(res.Warnings),
		RealizedUSD:  total,
		Realizations: res.Realizations,
	})
}

// GetState returns the last committed state of the wallet.
func (c *Controller) GetState(ctx context.Context, walletID string) (*Snapshot, error) {
	state, err := c.store.Load(ctx, walletID)
	if err != nil {
		return nil, &PersistenceError{WalletID: walletID, Op: "load", Err: err}
	}
	return snapshotFrom(walletID, state), nil
}

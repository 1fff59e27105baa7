package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/events"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/memory"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
)

const (
	wallet = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	assetA = "AssetAmint1111111111111111111111111111111111"
	assetB = "AssetBmint1111111111111111111111111111111111"
)

var baseTime = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func at(minute int) int64 {
	return baseTime.Add(time.Duration(minute) * time.Minute).UnixMilli()
}

func solLeg(amount float64) trade.Leg {
	return trade.Leg{Address: trade.WrappedSOLMint, Amount: amount, Token: trade.TokenInfo{Symbol: "SOL"}}
}

func assetLeg(mint string, amount float64) trade.Leg {
	return trade.Leg{Address: mint, Amount: amount, Token: trade.TokenInfo{Symbol: "TKN"}}
}

// buy of qty units of mint at unit USD price.
func buy(id string, minute int, mint string, qty, price float64) trade.RawTrade {
	return trade.RawTrade{
		Tx: id, Time: at(minute),
		From: solLeg(1), To: assetLeg(mint, qty),
		Volume: trade.Quote{USD: qty * price},
	}
}

func sell(id string, minute int, mint string, qty, price float64) trade.RawTrade {
	return trade.RawTrade{
		Tx: id, Time: at(minute),
		From: assetLeg(mint, qty), To: solLeg(1),
		Volume: trade.Quote{USD: qty * price},
	}
}

func newController(t *testing.T, opts ...Option) (*Controller, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewController(store, zap.NewNop(), opts...), store
}

func TestIngest_FIFOExample(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	res, err := c.Ingest(ctx, wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 10, 1),
		buy("b2", 2, assetA, 5, 2),
		sell("s1", 3, assetA, 12, 3),
	})
	require.NoError(t, err)

	assert.True(t, res.Committed)
	assert.Equal(t, 3, res.Applied)
	assert.InDelta(t, 22.0, res.RealizedPnl[assetA], 1e-9)

	lots := res.OpenLots[assetA]
	require.Len(t, lots, 1)
	assert.InDelta(t, 3.0, lots[0].QuantityRemaining, 1e-9)
	assert.InDelta(t, 2.0, lots[0].UnitCostUSD, 1e-9)

	require.Len(t, res.Realizations, 1)
	assert.Equal(t, "s1", res.Realizations[0].TradeID)
	assert.Len(t, res.Realizations[0].Lots, 2)
}

func TestIngest_Idempotence(t *testing.T) {
	ctx := context.Background()
	t1 := buy("t1", 1, assetA, 10, 1)
	t2 := buy("t2", 2, assetA, 5, 2)
	t3 := sell("t3", 3, assetA, 12, 3)

	incremental, _ := newController(t)
	_, err := incremental.Ingest(ctx, wallet, []trade.RawTrade{t1, t2})
	require.NoError(t, err)
	_, err = incremental.Ingest(ctx, wallet, []trade.RawTrade{t1, t2, t3})
	require.NoError(t, err)
	again, err := incremental.Ingest(ctx, wallet, []trade.RawTrade{t1, t2, t3})
	require.NoError(t, err)
	assert.False(t, again.Committed, "replay must not commit")
	assert.Equal(t, 3, again.Duplicates)

	single, _ := newController(t)
	_, err = single.Ingest(ctx, wallet, []trade.RawTrade{t1, t2, t3})
	require.NoError(t, err)

	a, err := incremental.GetState(ctx, wallet)
	require.NoError(t, err)
	b, err := single.GetState(ctx, wallet)
	require.NoError(t, err)

	assert.Equal(t, b.RealizedPnl, a.RealizedPnl)
	assert.Equal(t, b.OpenLots, a.OpenLots)
	assert.Equal(t, b.ProcessedIDs, a.ProcessedIDs)
	assert.Equal(t, []string{"t1", "t2", "t3"}, a.ProcessedIDs)
}

func TestIngest_InputOrderIndependence(t *testing.T) {
	ctx := context.Background()
	t1 := buy("t1", 1, assetA, 4, 1)
	t2 := sell("t2", 2, assetA, 4, 1.5)

	forward, _ := newController(t)
	resF, err := forward.Ingest(ctx, wallet, []trade.RawTrade{t1, t2})
	require.NoError(t, err)

	backward, _ := newController(t)
	resB, err := backward.Ingest(ctx, wallet, []trade.RawTrade{t2, t1})
	require.NoError(t, err)

	assert.Equal(t, resF.RealizedPnl, resB.RealizedPnl)
	assert.Equal(t, resF.OpenLots, resB.OpenLots)
	assert.Empty(t, resB.Warnings, "sorted input must not oversell")
	assert.InDelta(t, 2.0, resB.RealizedPnl[assetA], 1e-12)
}

func TestIngest_EqualTimestampsKeepIngestionOrder(t *testing.T) {
	c, _ := newController(t)

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 1, 1),
		buy("b2", 1, assetA, 1, 5),
		sell("s1", 2, assetA, 1, 5),
	})
	require.NoError(t, err)

	// the first lot in ingestion order is consumed first
	assert.InDelta(t, 4.0, res.RealizedPnl[assetA], 1e-12)
	require.Len(t, res.OpenLots[assetA], 1)
	assert.Equal(t, "b2", res.OpenLots[assetA][0].TradeID)
}

func TestIngest_Oversell(t *testing.T) {
	tests := []struct {
		name         string
		policy       pnl.UnmatchedPolicy
		wantRealized float64
	}{
		{"ignore", pnl.UnmatchedIgnore, 0},
		{"zero cost", pnl.UnmatchedZeroCost, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newController(t, WithUnmatchedPolicy(tt.policy))

			res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
				sell("s1", 1, assetB, 7, 2),
			})
			require.NoError(t, err)

			assert.Equal(t, 7.0, res.UnmatchedQuantity[assetB])
			assert.InDelta(t, tt.wantRealized, res.RealizedPnl[assetB], 1e-12)
			require.Len(t, res.Warnings, 1)
			assert.Equal(t, WarningInsufficientInventory, res.Warnings[0].Kind)
			assert.Equal(t, 7.0, res.Warnings[0].UnmatchedQuantity)
			assert.True(t, res.Committed, "an oversell is still applied")
		})
	}
}

func TestIngest_PartialOversell(t *testing.T) {
	c, _ := newController(t)

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 3, 1),
		sell("s1", 2, assetA, 5, 2),
	})
	require.NoError(t, err)

	assert.InDelta(t, 3.0, res.RealizedPnl[assetA], 1e-12, "only the matched 3 units realize")
	assert.Equal(t, 2.0, res.UnmatchedQuantity[assetA])
	assert.Empty(t, res.OpenLots[assetA])
}

func TestIngest_RoundTripIsZero(t *testing.T) {
	c, _ := newController(t)
	q, p := 123456.789, 0.000731

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, q, p),
		sell("s1", 2, assetA, q, p),
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.RealizedPnl[assetA], 1e-9)
	assert.Empty(t, res.OpenLots)
}

func TestIngest_MalformedTradeDoesNotBlockBatch(t *testing.T) {
	c, _ := newController(t)

	bad := buy("bad", 1, assetA, 10, 1)
	bad.Volume.USD = 0
	noBase := trade.RawTrade{Tx: "nobase", Time: at(1), From: assetLeg(assetA, 1), To: assetLeg(assetB, 1)}

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		bad,
		noBase,
		buy("b1", 2, assetA, 10, 1),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 2, res.WarningCounts()[string(WarningMalformed)])

	state, err := c.GetState(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, state.ProcessedIDs, "malformed ids are not marked processed")
}

func TestIngest_DuplicateWithinBatch(t *testing.T) {
	c, _ := newController(t)

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 10, 1),
		buy("b1", 1, assetA, 10, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Duplicates)
	assert.InDelta(t, 10.0, res.OpenLots[assetA][0].QuantityRemaining, 1e-12)
}

func TestIngest_BuyCreatesPnlEntry(t *testing.T) {
	c, _ := newController(t)

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{buy("b1", 1, assetA, 1, 1)})
	require.NoError(t, err)

	v, ok := res.RealizedPnl[assetA]
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestIngest_BuyTotals(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	_, err := c.Ingest(ctx, wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 10, 1),
		buy("b2", 2, assetA, 5, 2),
		buy("b3", 3, assetB, 4, 0.5),
		sell("s1", 4, assetA, 12, 3),
	})
	require.NoError(t, err)

	state, err := c.GetState(ctx, wallet)
	require.NoError(t, err)

	a := state.Details[assetA]
	assert.Equal(t, 2, a.Buys)
	assert.InDelta(t, 15.0, a.BoughtQuantity, 1e-12)
	assert.InDelta(t, 20.0, a.BoughtUSD, 1e-12)
	assert.Equal(t, 1, a.Sales)
	assert.InDelta(t, 22.0, a.RealizedUSD, 1e-12)
	assert.InDelta(t, 22.0, state.TotalBoughtUSD(), 1e-12)
}

func TestIngest_ConcurrentRunsApplyOnce(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	batch := []trade.RawTrade{
		buy("b1", 1, assetA, 10, 1),
		buy("b2", 2, assetA, 10, 2),
		sell("s1", 3, assetA, 15, 3),
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Ingest(ctx, wallet, batch)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := c.GetState(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.Version, "only the first run commits")
	assert.InDelta(t, 10*(3-1)+5*(3-2), state.RealizedPnl[assetA], 1e-9)
}

func TestIngest_ManyWalletsAreIndependent(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		w := fmt.Sprintf("wallet-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Ingest(ctx, w, []trade.RawTrade{buy("b1", 1, assetA, 1, 1)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		state, err := c.GetState(ctx, fmt.Sprintf("wallet-%d", i))
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, state.ProcessedIDs)
	}
}

func TestRebuild_ReplaysLateTrade(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	late := buy("b0", 0, assetA, 5, 10)
	history := []trade.RawTrade{
		buy("b1", 1, assetA, 5, 1),
		sell("s1", 2, assetA, 5, 2),
	}
	_, err := c.Ingest(ctx, wallet, history)
	require.NoError(t, err)

	res, err := c.Rebuild(ctx, wallet, append(history, late))
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Version)
	// the late lot at $10 is now the first one sold
	assert.InDelta(t, 5*(2-10), res.RealizedPnl[assetA], 1e-9)
	require.Len(t, res.OpenLots[assetA], 1)
	assert.Equal(t, "b1", res.OpenLots[assetA][0].TradeID)
}

// mockStore is a testify mock of storage.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	args := m.Called(ctx, walletID)
	state, _ := args.Get(0).(*models.WalletState)
	return state, args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, walletID string, state *models.WalletState, expectedVersion int64) error {
	return m.Called(ctx, walletID, state, expectedVersion).Error(0)
}

func (m *mockStore) Close() error { return nil }

func TestIngest_PersistenceErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection reset")

	t.Run("load", func(t *testing.T) {
		store := &mockStore{}
		store.On("Load", mock.Anything, wallet).Return(nil, boom)

		c := NewController(store, zap.NewNop())
		_, err := c.Ingest(ctx, wallet, []trade.RawTrade{buy("b1", 1, assetA, 1, 1)})

		var pErr *PersistenceError
		require.True(t, errors.As(err, &pErr))
		assert.Equal(t, "load", pErr.Op)
		assert.True(t, errors.Is(err, boom))
		store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("save conflict", func(t *testing.T) {
		store := &mockStore{}
		store.On("Load", mock.Anything, wallet).Return(nil, nil)
		store.On("Save", mock.Anything, wallet, mock.MatchedBy(func(s *models.WalletState) bool {
			return s.Version == 1 && len(s.ProcessedIDs) == 1
		}), int64(0)).Return(storage.ErrVersionConflict)

		c := NewController(store, zap.NewNop())
		_, err := c.Ingest(ctx, wallet, []trade.RawTrade{buy("b1", 1, assetA, 1, 1)})

		var pErr *PersistenceError
		require.True(t, errors.As(err, &pErr))
		assert.Equal(t, "save", pErr.Op)
		assert.True(t, errors.Is(err, storage.ErrVersionConflict))
		store.AssertExpectations(t)
	})

	t.Run("get state", func(t *testing.T) {
		store := &mockStore{}
		store.On("Load", mock.Anything, wallet).Return(nil, boom)

		c := NewController(store, zap.NewNop())
		_, err := c.GetState(ctx, wallet)
		assert.True(t, errors.Is(err, boom))
	})
}

func TestIngest_FailedSaveLeavesCommittedStateUntouched(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	c := NewController(inner, zap.NewNop())

	_, err := c.Ingest(ctx, wallet, []trade.RawTrade{buy("b1", 1, assetA, 10, 1)})
	require.NoError(t, err)

	// a writer in another process bumps the version behind our back
	st, err := inner.Load(ctx, wallet)
	require.NoError(t, err)
	bumped := st.Clone()
	bumped.Version = 2
	require.NoError(t, inner.Save(ctx, wallet, bumped, 1))

	failing := NewController(&staleStore{Store: inner, version: 1}, zap.NewNop())
	_, err = failing.Ingest(ctx, wallet, []trade.RawTrade{sell("s1", 2, assetA, 10, 2)})
	require.Error(t, err)

	state, err := c.GetState(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, state.ProcessedIDs)
	assert.InDelta(t, 10.0, state.OpenLots[assetA][0].QuantityRemaining, 1e-12)
}

// staleStore serves an outdated version on Load.
type staleStore struct {
	*memory.Store
	version int64
}

func (s *staleStore) Load(ctx context.Context, walletID string) (*models.WalletState, error) {
	st, err := s.Store.Load(ctx, walletID)
	if st != nil {
		st.Version = s.version
	}
	return st, err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishWait(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type())
	}
	return out
}

func TestIngest_PublishesEvents(t *testing.T) {
	pub := &recordingPublisher{}
	c, _ := newController(t, WithPublisher(pub))

	_, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 1, 1),
		sell("s1", 2, assetA, 2, 2),
	})
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.SaleRealized,
		events.InventoryShortfall,
		events.IngestCompleted,
	}, pub.types())

	done := pub.events[2].(*events.IngestCompletedEvent)
	assert.Equal(t, 2, done.Applied)
	assert.Equal(t, int64(1), done.Version)
}

func TestGetState_UnknownWallet(t *testing.T) {
	c, _ := newController(t)

	state, err := c.GetState(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Version)
	assert.Empty(t, state.RealizedPnl)
	assert.Empty(t, state.OpenLots)
	assert.Empty(t, state.ProcessedIDs)
}

func TestIngest_LateTradeMatchesSingleIngestOfUnion(t *testing.T) {
	ctx := context.Background()
	t1 := buy("t1", 1, assetA, 10, 1)
	t2 := sell("t2", 3, assetA, 10, 3)
	t3 := buy("t3", 0, assetA, 5, 10)

	incremental, _ := newController(t)
	_, err := incremental.Ingest(ctx, wallet, []trade.RawTrade{t1, t2})
	require.NoError(t, err)

	res, err := incremental.Ingest(ctx, wallet, []trade.RawTrade{t3})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.True(t, res.Replayed)
	assert.Equal(t, int64(2), res.Version)
	require.Equal(t, 1, res.WarningCounts()[string(WarningOutOfOrder)])
	assert.Equal(t, "t3", res.Warnings[0].TradeID)

	single, _ := newController(t)
	_, err = single.Ingest(ctx, wallet, []trade.RawTrade{t1, t2, t3})
	require.NoError(t, err)

	a, err := incremental.GetState(ctx, wallet)
	require.NoError(t, err)
	b, err := single.GetState(ctx, wallet)
	require.NoError(t, err)

	assert.InDelta(t, -25.0, a.RealizedPnl[assetA], 1e-9)
	assert.Equal(t, b.RealizedPnl, a.RealizedPnl)
	assert.Equal(t, b.OpenLots, a.OpenLots)
	assert.Equal(t, b.ProcessedIDs, a.ProcessedIDs)
	require.Len(t, a.OpenLots[assetA], 1)
	assert.Equal(t, "t1", a.OpenLots[assetA][0].TradeID)
	assert.InDelta(t, 5.0, a.OpenLots[assetA][0].QuantityRemaining, 1e-12)

	// the full history is a no-op afterwards
	again, err := incremental.Ingest(ctx, wallet, []trade.RawTrade{t1, t2, t3})
	require.NoError(t, err)
	assert.False(t, again.Committed)
	assert.False(t, again.Replayed)
}

func TestIngest_LateTradeWithoutStoredHistoryIsFlagged(t *testing.T) {
	ctx := context.Background()
	c, store := newController(t)

	// a state committed before trade history was persisted
	legacy := models.NewWalletState(wallet)
	legacy.Version = 1
	legacy.ProcessedIDs = []string{"t1"}
	legacy.LastTradeAt = baseTime.Add(5 * time.Minute)
	require.NoError(t, store.Save(ctx, wallet, legacy, 0))

	res, err := c.Ingest(ctx, wallet, []trade.RawTrade{buy("t0", 1, assetA, 2, 1)})
	require.NoError(t, err)

	assert.True(t, res.Committed)
	assert.False(t, res.Replayed)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarningOutOfOrder, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Message, "applied out of order")
	assert.InDelta(t, 2.0, res.OpenLots[assetA][0].QuantityRemaining, 1e-12)
}

func scrape(t *testing.T, m *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestIngest_NoopRunRecordsMetrics(t *testing.T) {
	m := metrics.NewCollector()
	c, _ := newController(t, WithMetrics(m))
	ctx := context.Background()

	batch := []trade.RawTrade{buy("b1", 1, assetA, 1, 1), buy("b2", 2, assetA, 1, 1)}
	_, err := c.Ingest(ctx, wallet, batch)
	require.NoError(t, err)

	bad := buy("bad", 3, assetA, 1, 1)
	bad.Volume.USD = 0
	res, err := c.Ingest(ctx, wallet, append(batch, bad))
	require.NoError(t, err)
	require.False(t, res.Committed)

	body := scrape(t, m)
	assert.Contains(t, body, `solana_pnl_ingest_runs_total{status="noop",wallet="`+wallet+`"} 1`)
	assert.Contains(t, body, `solana_pnl_trades_total{outcome="duplicate",wallet="`+wallet+`"} 2`)
	assert.Contains(t, body, `solana_pnl_warnings_total{kind="malformed",wallet="`+wallet+`"} 1`)
}

type failingPublisher struct {
	calls atomic.Int32
}

func (p *failingPublisher) PublishWait(context.Context, events.Event) error {
	p.calls.Add(1)
	return errors.New("event bus is shutting down")
}

func TestIngest_PublishFailureIsCountedNotFatal(t *testing.T) {
	m := metrics.NewCollector()
	pub := &failingPublisher{}
	c, _ := newController(t, WithPublisher(pub), WithMetrics(m))

	res, err := c.Ingest(context.Background(), wallet, []trade.RawTrade{
		buy("b1", 1, assetA, 1, 1),
		sell("s1", 2, assetA, 1, 2),
	})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, int32(2), pub.calls.Load())

	body := scrape(t, m)
	assert.True(t, strings.Contains(body,
		`solana_pnl_event_publish_failures_total{event_type="`+string(events.SaleRealized)+`"} 1`))
}

func TestIngest_LargeRunDeliversEverySale(t *testing.T) {
	bus := events.NewBus(zap.NewNop(), 4)
	var delivered atomic.Int32
	bus.SubscribeFunc(events.SaleRealized, func(context.Context, events.Event) error {
		time.Sleep(20 * time.Microsecond)
		delivered.Add(1)
		return nil
	})

	c, _ := newController(t, WithPublisher(bus))

	const sales = 300
	batch := []trade.RawTrade{buy("b1", 0, assetA, sales, 1)}
	for i := 0; i < sales; i++ {
		batch = append(batch, sell(fmt.Sprintf("s%d", i), i+1, assetA, 1, 2))
	}
	res, err := c.Ingest(context.Background(), wallet, batch)
	require.NoError(t, err)
	require.Len(t, res.Realizations, sales)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	assert.Equal(t, int32(sales), delivered.Load())
	assert.Zero(t, bus.Stats().Dropped)
}

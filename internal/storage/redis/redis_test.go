package redis

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rovshanmuradov/solana-pnl/internal/ledger"
	"github.com/rovshanmuradov/solana-pnl/internal/storage"
	"github.com/rovshanmuradov/solana-pnl/internal/storage/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	s, err := New(context.Background(), Options{Addr: addr}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore_CompareAndSwap(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	wallet := "test-" + uuid.NewString()
	t.Cleanup(func() { s.client.Del(context.Background(), key(wallet)) })

	loaded, err := s.Load(ctx, wallet)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	st := models.NewWalletState(wallet)
	st.Version = 1
	st.Lots["A"] = []ledger.Lot{{QuantityRemaining: 1, UnitCostUSD: 1}}
	require.NoError(t, s.Save(ctx, wallet, st, 0))

	err = s.Save(ctx, wallet, st, 0)
	assert.True(t, errors.Is(err, storage.ErrVersionConflict))

	loaded, err = s.Load(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Version)
	assert.Len(t, loaded.Lots["A"], 1)
}

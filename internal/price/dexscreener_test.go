package price

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const bonk = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func newTestClient(url string) *Client {
	return NewClient(Config{BaseURL: url, RequestsPerMinute: 60000, MaxRetries: 1, CacheTTL: time.Minute}, zap.NewNop(), nil)
}

func TestPriceUSD_ReadsFirstPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/v1/solana/"+bonk, r.URL.Path)
		fmt.Fprint(w, `[{"chainId":"solana","dexId":"raydium","priceUsd":"0.00002134"},{"priceUsd":"9"}]`)
	}))
	defer srv.Close()

	p, err := newTestClient(srv.URL).PriceUSD(context.Background(), bonk)
	require.NoError(t, err)
	assert.InDelta(t, 0.00002134, p, 1e-12)
}

func TestPriceUSD_NoPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).PriceUSD(context.Background(), bonk)
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestPriceUSD_InvalidMint(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").PriceUSD(context.Background(), "not-a-mint")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mint")
}

func TestPriceUSD_CachesUntilExpiry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `[{"priceUsd":"1.5"}]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		p, err := c.PriceUSD(context.Background(), bonk)
		require.NoError(t, err)
		assert.Equal(t, 1.5, p)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	now = now.Add(2 * time.Minute)
	_, err := c.PriceUSD(context.Background(), bonk)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPriceUSD_ConcurrentLookupsShareRequest(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-release
		fmt.Fprint(w, `[{"priceUsd":"2"}]`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := c.PriceUSD(context.Background(), bonk)
			assert.NoError(t, err)
			assert.Equal(t, 2.0, p)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

package ledger

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestConsume_FIFOAcrossLots(t *testing.T) {
	l := New()
	require.NoError(t, l.OpenLot("A", 10, 1, t0, "b1"))
	require.NoError(t, l.OpenLot("A", 5, 2, t0.Add(time.Minute), "b2"))

	res, err := l.Consume("A", 12)
	require.NoError(t, err)
	assert.Nil(t, res.Shortfall)

	require.Len(t, res.Taken, 2)
	assert.Equal(t, 10.0, res.Taken[0].Quantity)
	assert.Equal(t, 1.0, res.Taken[0].UnitCostUSD)
	assert.Equal(t, "b1", res.Taken[0].TradeID)
	assert.Equal(t, 2.0, res.Taken[1].Quantity)
	assert.Equal(t, 2.0, res.Taken[1].UnitCostUSD)

	queue := l.Queue("A")
	require.Len(t, queue, 1)
	assert.Equal(t, 3.0, queue[0].QuantityRemaining)
	assert.Equal(t, 2.0, queue[0].UnitCostUSD)
	assert.Equal(t, "b2", queue[0].TradeID)
}

func TestConsume_PartialFrontLot(t *testing.T) {
	l := New()
	require.NoError(t, l.OpenLot("A", 10, 1, t0, "b1"))

	res, err := l.Consume("A", 4)
	require.NoError(t, err)
	require.Len(t, res.Taken, 1)
	assert.Equal(t, 4.0, res.Matched())
	assert.Equal(t, 6.0, l.TotalQuantity("A"))

	queue := l.Queue("A")
	require.Len(t, queue, 1)
	assert.Equal(t, 10.0, queue[0].OriginalQuantity)
}

func TestConsume_ExactDrainRemovesAsset(t *testing.T) {
	l := New()
	require.NoError(t, l.OpenLot("A", 0.1, 1, t0, "b1"))
	require.NoError(t, l.OpenLot("A", 0.2, 1, t0, "b2"))

	res, err := l.Consume("A", 0.3)
	require.NoError(t, err)
	assert.Nil(t, res.Shortfall, "float residue must not surface as shortfall")
	assert.Empty(t, l.Queue("A"))
	assert.NotContains(t, l.Assets(), "A")
}

func TestConsume_Shortfall(t *testing.T) {
	l := New()

	res, err := l.Consume("A", 7)
	require.NoError(t, err)
	assert.Empty(t, res.Taken)
	require.NotNil(t, res.Shortfall)
	assert.Equal(t, 7.0, res.Shortfall.Unmatched)
	assert.Equal(t, 7.0, res.Unmatched())

	require.NoError(t, l.OpenLot("A", 3, 1, t0, "b1"))
	res, err = l.Consume("A", 5)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Matched())
	assert.Equal(t, 2.0, res.Unmatched())
	assert.Equal(t, 0.0, l.TotalQuantity("A"))
}

func TestInvalidQuantity(t *testing.T) {
	l := New()

	for _, q := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		err := l.OpenLot("A", q, 1, t0, "x")
		var qErr *InvalidQuantityError
		assert.True(t, errors.As(err, &qErr), "OpenLot(%v)", q)

		_, err = l.Consume("A", q)
		assert.True(t, errors.As(err, &qErr), "Consume(%v)", q)
	}

	err := l.OpenLot("A", 1, -2, t0, "x")
	assert.Error(t, err)
	assert.Empty(t, l.Assets())
}

func TestNonNegativity_RandomSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := New()
	var bought, sold float64

	for i := 0; i < 2000; i++ {
		q := rng.Float64()*100 + 0.000001
		if rng.Intn(2) == 0 {
			require.NoError(t, l.OpenLot("A", q, rng.Float64()*10, t0, ""))
			bought += q
		} else {
			res, err := l.Consume("A", q)
			require.NoError(t, err)
			sold += res.Matched()
		}

		for _, lot := range l.Queue("A") {
			assert.Greater(t, lot.QuantityRemaining, 0.0)
		}
		assert.GreaterOrEqual(t, l.TotalQuantity("A"), 0.0)
	}

	assert.InDelta(t, bought-sold, l.TotalQuantity("A"), 1e-6)
}

func TestFromLots(t *testing.T) {
	l := FromLots(map[string][]Lot{
		"A": {{QuantityRemaining: 2, UnitCostUSD: 1}, {QuantityRemaining: 0, UnitCostUSD: 3}},
		"B": {},
	})

	assert.Equal(t, []string{"A"}, l.Assets())
	assert.Len(t, l.Queue("A"), 1)

	// queues handed out are copies
	q := l.Queue("A")
	q[0].QuantityRemaining = 100
	assert.Equal(t, 2.0, l.TotalQuantity("A"))
}

func TestConsume_DustIsRelativeToLotSize(t *testing.T) {
	tests := []struct {
		name       string
		lotQty     float64
		sell       float64
		wantOpen   bool
		wantRemain float64
	}{
		{name: "tiny lot partly sold keeps remainder", lotQty: 5e-10, sell: 2e-10, wantOpen: true, wantRemain: 3e-10},
		{name: "float noise on a large lot is dust", lotQty: 1e6, sell: 1e6 - 1e-6, wantOpen: false},
		{name: "real remainder on a large lot stays", lotQty: 1e6, sell: 1e6 - 1, wantOpen: true, wantRemain: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			require.NoError(t, l.OpenLot("A", tt.lotQty, 1, time.Now(), "b1"))

			res, err := l.Consume("A", tt.sell)
			require.NoError(t, err)
			assert.Nil(t, res.Shortfall)

			q := l.Queue("A")
			if !tt.wantOpen {
				assert.Empty(t, q)
				return
			}
			require.Len(t, q, 1)
			assert.InDelta(t, tt.wantRemain, q[0].QuantityRemaining, tt.wantRemain*1e-6)

			// selling the rest drains the lot without a shortfall
			res, err = l.Consume("A", q[0].QuantityRemaining)
			require.NoError(t, err)
			assert.Nil(t, res.Shortfall)
			assert.Empty(t, l.Queue("A"))
		})
	}
}

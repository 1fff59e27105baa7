package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-pnl/internal/config"
	"github.com/rovshanmuradov/solana-pnl/internal/ingest"
	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

func TestNewStateView_IncludesBuyTotals(t *testing.T) {
	snap := &ingest.Snapshot{
		WalletID:    "w1",
		Version:     4,
		RealizedPnl: map[string]float64{"A": 22.004, "B": -1},
		Details: map[string]pnl.RealizedPnl{
			"A": {RealizedUSD: 22.004, BoughtUSD: 20, BoughtQuantity: 15, Buys: 2, Sales: 1},
			"B": {RealizedUSD: -1, BoughtUSD: 5.5, Buys: 1},
		},
	}

	view := newStateView(snap)
	assert.Equal(t, "$25.50", view.TotalBought)
	assert.Equal(t, "$21.00", view.TotalRealized)

	data, err := json.Marshal(view)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "$25.50", decoded["total_bought_usd"])
	assets := decoded["assets"].(map[string]interface{})
	assert.Equal(t, 20.0, assets["A"].(map[string]interface{})["bought_usd"])
	assert.Equal(t, 2.0, assets["A"].(map[string]interface{})["buys"])
}

func TestPickWallet(t *testing.T) {
	one := &config.Config{Wallets: []string{"w1"}}
	two := &config.Config{Wallets: []string{"w1", "w2"}}

	got, err := pickWallet(one, "")
	require.NoError(t, err)
	assert.Equal(t, "w1", got)

	got, err = pickWallet(two, "w2")
	require.NoError(t, err)
	assert.Equal(t, "w2", got)

	_, err = pickWallet(two, "")
	assert.Error(t, err)
}

func TestReportDate(t *testing.T) {
	now := time.Date(2025, 3, 14, 23, 0, 0, 0, time.FixedZone("X", 3*3600))

	got, err := exportFlags{}.reportDate(now)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", got.Format(time.DateOnly))

	got, err = exportFlags{date: "2024-12-31"}.reportDate(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), got)

	_, err = exportFlags{date: "31/12/2024"}.reportDate(now)
	assert.Error(t, err)
}

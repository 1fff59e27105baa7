// internal/trade/trade.go
package trade

import "time"

// Side is the direction of a trade relative to the watched wallet.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// WrappedSOLMint is the base asset mint on Solana.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Trade is the canonical, immutable form of one fill.
type Trade struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	AssetID      string    `json:"asset_id"`
	Symbol       string    `json:"symbol,omitempty"`
	Side         Side      `json:"side"`
	Quantity     float64   `json:"quantity"`
	UnitPriceUSD float64   `json:"unit_price_usd"`
	ValueUSD     float64   `json:"value_usd"`
	Program      string    `json:"program,omitempty"`

	// Seq is the position of the record in its ingestion batch.
	Seq int `json:"-"`
}

// RawTrade is one element of the SolanaTracker wallet trades response.
type RawTrade struct {
	Tx      string `json:"tx"`
	Wallet  string `json:"wallet,omitempty"`
	Program string `json:"program,omitempty"`
	Time    int64  `json:"time"`
	From    Leg    `json:"from"`
	To      Leg    `json:"to"`
	Price   Quote  `json:"price"`
	Volume  Quote  `json:"volume"`

	// DecodeErr is set when the record could not be decoded. Such a record
	// is reported as malformed instead of failing its whole page.
	DecodeErr error `json:"-"`
}

// Leg is one side of a swap.
type Leg struct {
	Address  string    `json:"address"`
	Amount   float64   `json:"amount"`
	ValueUSD float64   `json:"valueUsd,omitempty"`
	Token    TokenInfo `json:"token"`
}

// TokenInfo describes the token moved by a leg.
type TokenInfo struct {
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Image    string `json:"image,omitempty"`
	Decimals int    `json:"decimals,omitempty"`
}

// Quote is an amount in both USD and SOL.
type Quote struct {
	USD float64 `json:"usd"`
	SOL float64 `json:"sol"`
}

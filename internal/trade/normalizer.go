// internal/trade/normalizer.go
package trade

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Normalizer converts raw feed records into canonical trades. It is the only
// place that decides trade side, USD value and timestamp units.
type Normalizer struct {
	baseMints   map[string]struct{}
	baseSymbols map[string]struct{}
}

// NewNormalizer creates a normalizer. Entries of baseAssets that look like
// mint addresses are matched against leg addresses, the rest against token
// symbols. An empty list falls back to SOL.
func NewNormalizer(baseAssets ...string) *Normalizer {
	if len(baseAssets) == 0 {
		baseAssets = []string{WrappedSOLMint, "SOL"}
	}
	n := &Normalizer{
		baseMints:   make(map[string]struct{}),
		baseSymbols: make(map[string]struct{}),
	}
	for _, asset := range baseAssets {
		asset = strings.TrimSpace(asset)
		if asset == "" {
			continue
		}
		if len(asset) >= 32 {
			n.baseMints[asset] = struct{}{}
		} else {
			n.baseSymbols[strings.ToUpper(asset)] = struct{}{}
		}
	}
	return n
}

// IsBase reports whether the leg moves the base asset.
func (n *Normalizer) IsBase(leg Leg) bool {
	if _, ok := n.baseMints[leg.Address]; ok && leg.Address != "" {
		return true
	}
	if leg.Token.Symbol != "" {
		if _, ok := n.baseSymbols[strings.ToUpper(leg.Token.Symbol)]; ok {
			return true
		}
	}
	return false
}

// Normalize converts one raw record seen from walletID's perspective.
func (n *Normalizer) Normalize(walletID string, raw RawTrade) (Trade, error) {
	id := strings.TrimSpace(raw.Tx)
	if raw.DecodeErr != nil {
		return Trade{}, malformed(id, "undecodable record: %v", raw.DecodeErr)
	}
	if id == "" {
		return Trade{}, malformed("", "missing transaction id")
	}
	if raw.Wallet != "" && walletID != "" && raw.Wallet != walletID {
		return Trade{}, malformed(id, "trade belongs to wallet %s", raw.Wallet)
	}

	ts, err := NormalizeTimestamp(raw.Time)
	if err != nil {
		return Trade{}, malformed(id, "%v", err)
	}

	fromBase, toBase := n.IsBase(raw.From), n.IsBase(raw.To)

	var (
		side  Side
		asset Leg
		base  Leg
	)
	switch {
	case fromBase && !toBase:
		side, asset, base = Buy, raw.To, raw.From
	case toBase && !fromBase:
		side, asset, base = Sell, raw.From, raw.To
	case fromBase && toBase:
		return Trade{}, malformed(id, "both legs are the base asset")
	default:
		return Trade{}, malformed(id, "neither leg is the base asset")
	}

	if asset.Address == "" {
		return Trade{}, malformed(id, "missing asset address")
	}
	if !isPositive(asset.Amount) {
		return Trade{}, malformed(id, "unresolvable quantity %v", asset.Amount)
	}

	valueUSD, ok := resolveValueUSD(raw, asset, base)
	if !ok {
		return Trade{}, malformed(id, "no USD value for either leg")
	}

	return Trade{
		ID:           id,
		Timestamp:    ts,
		AssetID:      asset.Address,
		Symbol:       asset.Token.Symbol,
		Side:         side,
		Quantity:     asset.Amount,
		UnitPriceUSD: valueUSD / asset.Amount,
		ValueUSD:     valueUSD,
		Program:      raw.Program,
	}, nil
}

// resolveValueUSD picks the USD value of the traded asset leg. The record's
// price object is never used: providers disagree on its denomination.
func resolveValueUSD(raw RawTrade, asset, base Leg) (float64, bool) {
	for _, v := range []float64{asset.ValueUSD, raw.Volume.USD, base.ValueUSD} {
		if isPositive(v) {
			return v, true
		}
	}
	return 0, false
}

// NormalizeTimestamp converts an epoch value of unknown unit to UTC time.
// Values below 1e12 are seconds, below 1e15 milliseconds, below 1e18
// microseconds and nanoseconds otherwise.
func NormalizeTimestamp(v int64) (time.Time, error) {
	switch {
	case v <= 0:
		return time.Time{}, errInvalidTimestamp(v)
	case v < 1e12:
		return time.Unix(v, 0).UTC(), nil
	case v < 1e15:
		return time.UnixMilli(v).UTC(), nil
	case v < 1e18:
		return time.UnixMicro(v).UTC(), nil
	default:
		return time.Unix(0, v).UTC(), nil
	}
}

func errInvalidTimestamp(v int64) error {
	return fmt.Errorf("invalid timestamp %d", v)
}

func isPositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

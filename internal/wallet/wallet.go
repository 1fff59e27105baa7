// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/solana-pnl/internal/blockchain/solbc"
	"github.com/rovshanmuradov/solana-pnl/internal/price"
	"github.com/rovshanmuradov/solana-pnl/internal/trade"
)

const maxPriceLookups = 8

// ValidateAddress проверяет, что id кошелька является base58 публичным ключом Solana.
func ValidateAddress(address string) (solana.PublicKey, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return solana.PublicKey{}, errors.New("wallet address is empty")
	}
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid wallet address %q: %w", address, err)
	}
	return pk, nil
}

// BalanceReader reads on-chain balances.
type BalanceReader interface {
	GetSOLBalance(ctx context.Context, owner solana.PublicKey) (float64, error)
	GetTokenBalances(ctx context.Context, owner solana.PublicKey) ([]solbc.TokenBalance, error)
}

// PriceSource returns USD spot prices by mint.
type PriceSource interface {
	PriceUSD(ctx context.Context, mint string) (float64, error)
}

// Holding is a token balance with its market value.
type Holding struct {
	Mint     string   `json:"mint"`
	Amount   float64  `json:"amount"`
	PriceUSD *float64 `json:"priceUsd"`
	ValueUSD *float64 `json:"valueUsd"`
}

// Snapshot представляет текущие балансы кошелька.
type Snapshot struct {
	Wallet     string    `json:"wallet"`
	SOLBalance float64   `json:"solBalance"`
	SOLPrice   *float64  `json:"solPriceUsd"`
	Tokens     []Holding `json:"tokens"`
	TakenAt    time.Time `json:"takenAt"`
}

// TotalValueUSD sums the known values including SOL.
func (s Snapshot) TotalValueUSD() float64 {
	total := 0.0
	if s.SOLPrice != nil {
		total += s.SOLBalance * *s.SOLPrice
	}
	for _, h := range s.Tokens {
		if h.ValueUSD != nil {
			total += *h.ValueUSD
		}
	}
	return total
}

// Service собирает снимки кошельков.
type Service struct {
	balances BalanceReader
	prices   PriceSource
	logger   *zap.Logger
}

// NewService создает сервис. prices may be nil, then no values are filled in.
func NewService(balances BalanceReader, prices PriceSource, logger *zap.Logger) *Service {
	return &Service{
		balances: balances,
		prices:   prices,
		logger:   logger.Named("wallet"),
	}
}

// Snapshot returns the SOL balance and token holdings of owner with USD
// values. A token without a price keeps a nil value.
func (s *Service) Snapshot(ctx context.Context, owner string) (*Snapshot, error) {
	pk, err := ValidateAddress(owner)
	if err != nil {
		return nil, err
	}

	var (
		solBalance float64
		tokens     []solbc.TokenBalance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		solBalance, err = s.balances.GetSOLBalance(gctx, pk)
		return err
	})
	g.Go(func() error {
		var err error
		tokens, err = s.balances.GetTokenBalances(gctx, pk)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("read balances of %s: %w", owner, err)
	}

	snap := &Snapshot{
		Wallet:     pk.String(),
		SOLBalance: solBalance,
		Tokens:     make([]Holding, len(tokens)),
		TakenAt:    time.Now().UTC(),
	}
	for i, t := range tokens {
		snap.Tokens[i] = Holding{Mint: t.Mint, Amount: t.Amount}
	}

	if s.prices != nil {
		s.fillPrices(ctx, snap)
	}

	sort.SliceStable(snap.Tokens, func(i, j int) bool {
		return valueOf(snap.Tokens[i]) > valueOf(snap.Tokens[j])
	})
	return snap, nil
}

// fillPrices looks prices up concurrently. Lookup failures are logged and
// leave the price empty.
func (s *Service) fillPrices(ctx context.Context, snap *Snapshot) {
	var g errgroup.Group
	g.SetLimit(maxPriceLookups)

	g.Go(func() error {
		if p, ok := s.lookup(ctx, trade.WrappedSOLMint); ok {
			snap.SOLPrice = &p
		}
		return nil
	})

	for i := range snap.Tokens {
		h := &snap.Tokens[i]
		g.Go(func() error {
			p, ok := s.lookup(ctx, h.Mint)
			if !ok {
				return nil
			}
			v := p * h.Amount
			h.PriceUSD = &p
			h.ValueUSD = &v
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) lookup(ctx context.Context, mint string) (float64, bool) {
	p, err := s.prices.PriceUSD(ctx, mint)
	if err != nil {
		if !errors.Is(err, price.ErrNoPrice) {
			s.logger.Warn("Price lookup failed", zap.String("mint", mint), zap.Error(err))
		}
		return 0, false
	}
	return p, true
}

func valueOf(h Holding) float64 {
	if h.ValueUSD == nil {
		return -1
	}
	return *h.ValueUSD
}

// internal/price/dexscreener.go
package price

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-pnl/internal/utils/httpclient"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
)

const (
	DefaultBaseURL  = "https://api.dexscreener.com"
	defaultRate     = 300 // requests per minute
	defaultCacheTTL = 30 * time.Second
	solanaChain     = "solana"
)

// ErrNoPrice is returned when DexScreener knows no pair for the mint.
var ErrNoPrice = errors.New("no price available")

// PairInfo содержит интересующие нас поля пары DexScreener
type PairInfo struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   TokenInfo `json:"baseToken"`
	QuoteToken  TokenInfo `json:"quoteToken"`
	PriceUSD    string    `json:"priceUsd"`
	PriceNative string    `json:"priceNative"`
}

// TokenInfo содержит информацию о токене
type TokenInfo struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

// Config настройки клиента цен
type Config struct {
	BaseURL           string
	RequestsPerMinute int
	MaxRetries        int
	CacheTTL          time.Duration
}

type cacheEntry struct {
	price   float64
	err     error
	expires time.Time
}

// Client looks up USD spot prices on DexScreener.
type Client struct {
	baseURL string
	ttl     time.Duration
	http    *httpclient.Client
	logger  *zap.Logger
	group   singleflight.Group
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient создает клиента цен
func NewClient(cfg Config, logger *zap.Logger, collector *metrics.Collector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = defaultRate
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	logger = logger.Named("dexscreener")

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.CacheTTL,
		http: httpclient.New(httpclient.Config{
			Provider:          "dexscreener",
			RequestsPerMinute: cfg.RequestsPerMinute,
			MaxRetries:        cfg.MaxRetries,
		}, logger, collector),
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

// PriceUSD returns the USD price of the first pair DexScreener lists for mint.
// Concurrent lookups of the same mint share one request.
func (c *Client) PriceUSD(ctx context.Context, mint string) (float64, error) {
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}

	if e, ok := c.cached(mint); ok {
		return e.price, e.err
	}

	v, err, _ := c.group.Do(mint, func() (interface{}, error) {
		p, err := c.fetch(ctx, mint)
		if err == nil || errors.Is(err, ErrNoPrice) {
			c.store(mint, p, err)
		}
		return p, err
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

func (c *Client) fetch(ctx context.Context, mint string) (float64, error) {
	url := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, solanaChain, mint)

	var pairs []PairInfo
	if err := c.http.GetJSON(ctx, url, &pairs); err != nil {
		return 0, fmt.Errorf("failed to get token pairs: %w", err)
	}
	if len(pairs) == 0 || pairs[0].PriceUSD == "" {
		return 0, ErrNoPrice
	}

	p, err := strconv.ParseFloat(pairs[0].PriceUSD, 64)
	if err != nil || p <= 0 {
		c.logger.Debug("Unusable priceUsd",
			zap.String("mint", mint),
			zap.String("price_usd", pairs[0].PriceUSD))
		return 0, ErrNoPrice
	}

	c.logger.Debug("Price fetched",
		zap.String("mint", mint),
		zap.String("pair_address", pairs[0].PairAddress),
		zap.String("dex", pairs[0].DexID),
		zap.Float64("price_usd", p))
	return p, nil
}

func (c *Client) cached(mint string) (cacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.cache[mint]
	if !ok || c.now().After(e.expires) {
		return cacheEntry{}, false
	}
	return e, true
}

func (c *Client) store(mint string, p float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[mint] = cacheEntry{price: p, err: err, expires: c.now().Add(c.ttl)}
}

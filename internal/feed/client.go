// internal/feed/client.go
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-pnl/internal/trade"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/httpclient"
	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
)

const (
	DefaultBaseURL  = "https://data.solanatracker.io"
	defaultMaxPages = 50
)

// Config настройки клиента SolanaTracker
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerMinute int
	MaxRetries        int
	MaxPages          int
}

// Client получает историю сделок кошелька из SolanaTracker.
type Client struct {
	baseURL  string
	maxPages int
	http     *httpclient.Client
	logger   *zap.Logger
}

// tradesPage is the paginated form of the response.
type tradesPage struct {
	Trades      []json.RawMessage `json:"trades"`
	NextCursor  json.RawMessage   `json:"nextCursor"`
	HasNextPage bool              `json:"hasNextPage"`
}

// NewClient создает клиента фида.
func NewClient(cfg Config, logger *zap.Logger, collector *metrics.Collector) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	logger = logger.Named("feed")

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["x-api-key"] = cfg.APIKey
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxPages: cfg.MaxPages,
		http: httpclient.New(httpclient.Config{
			Provider:          "solanatracker",
			RequestsPerMinute: cfg.RequestsPerMinute,
			MaxRetries:        cfg.MaxRetries,
			Headers:           headers,
		}, logger, collector),
		logger: logger,
	}
}

// FetchTrades returns every trade the provider reports for owner, following
// the cursor until the last page.
func (c *Client) FetchTrades(ctx context.Context, owner string) ([]trade.RawTrade, error) {
	var all []trade.RawTrade
	cursor := ""

	for page := 0; page < c.maxPages; page++ {
		endpoint := fmt.Sprintf("%s/wallet/%s/trades", c.baseURL, url.PathEscape(owner))
		if cursor != "" {
			endpoint += "?cursor=" + url.QueryEscape(cursor)
		}

		var body json.RawMessage
		if err := c.http.GetJSON(ctx, endpoint, &body); err != nil {
			return nil, fmt.Errorf("fetch trades for %s: %w", owner, err)
		}

		trades, next, more, err := decodePage(body)
		if err != nil {
			return nil, fmt.Errorf("decode trades for %s: %w", owner, err)
		}
		all = append(all, trades...)

		if !more || next == "" || next == cursor {
			c.logger.Debug("Trades fetched",
				zap.String("wallet", owner),
				zap.Int("pages", page+1),
				zap.Int("trades", len(all)))
			return all, nil
		}
		cursor = next
	}

	c.logger.Warn("Page limit reached, history truncated",
		zap.String("wallet", owner),
		zap.Int("max_pages", c.maxPages),
		zap.Int("trades", len(all)))
	return all, nil
}

// decodePage accepts both a bare array and the paginated object. Records are
// decoded one by one so a single bad record does not fail the page.
func decodePage(body json.RawMessage) ([]trade.RawTrade, string, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, "", false, nil
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, "", false, err
		}
		return decodeRecords(records), "", false, nil
	}

	var page tradesPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, "", false, err
	}
	return decodeRecords(page.Trades), cursorString(page.NextCursor), page.HasNextPage, nil
}

func decodeRecords(records []json.RawMessage) []trade.RawTrade {
	trades := make([]trade.RawTrade, 0, len(records))
	for _, rec := range records {
		var raw trade.RawTrade
		if err := json.Unmarshal(rec, &raw); err != nil {
			// tx id is still useful for the warning when only other fields are broken
			var id struct {
				Tx string `json:"tx"`
			}
			_ = json.Unmarshal(rec, &id)
			raw = trade.RawTrade{Tx: id.Tx, DecodeErr: err}
		}
		trades = append(trades, raw)
	}
	return trades
}

// cursorString normalizes a cursor that may be a string or a number.
func cursorString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

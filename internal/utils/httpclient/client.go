// internal/utils/httpclient/client.go
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rovshanmuradov/solana-pnl/internal/utils/metrics"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// Config configures a Client.
type Config struct {
	Provider          string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
	RetryDelay        time.Duration
	Headers           map[string]string
}

// Client is a rate-limited JSON client that retries transient failures.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a Client. A nil collector disables metrics.
func New(cfg Config, logger *zap.Logger, collector *metrics.Collector) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		cfg:     cfg,
		logger:  logger.Named(cfg.Provider),
		metrics: collector,
	}
}

// GetJSON fetches url and decodes the body into out. 5xx, 429 and network
// errors are retried with exponential backoff; other 4xx fail immediately.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.RetryDelay
	policy.MaxInterval = c.cfg.RetryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Warn("Request failed, retrying",
			zap.String("url", url),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() (struct{}, error) {
		return struct{}{}, c.do(ctx, url, out)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)),
		backoff.WithNotify(notify))
	return err
}

func (c *Client) do(ctx context.Context, url string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordHTTPRequest(c.cfg.Provider, 0, time.Since(start))
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordHTTPRequest(c.cfg.Provider, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return backoff.RetryAfter(secs)
			}
			return statusErr
		case resp.StatusCode >= 500:
			return statusErr
		default:
			return backoff.Permanent(statusErr)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

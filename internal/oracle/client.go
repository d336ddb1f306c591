// Package oracle provides the quote source for the engine: an HTTP
// client against the market-data service, fronted by a short-TTL cache
// so repeated lookups within one cycle do not hit the provider.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// ClientConfig holds the quote endpoint parameters.
type ClientConfig struct {
	BaseURL string
	// Timeout applies per lookup, so one unreachable symbol cannot
	// stall a whole cycle.
	Timeout time.Duration
	// RatePerSec throttles requests against the provider. Zero
	// disables throttling.
	RatePerSec float64
}

// Client fetches daily quotes over HTTP from the market-data collector.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

// NewClient creates a quote client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		timeout:    timeout,
	}
}

// apiQuote mirrors the collector's JSON quote payload.
type apiQuote struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	AsOf   string  `json:"as_of"`
}

// GetLatest fetches the latest daily bar for symbol. Timeouts, 404s, and
// provider errors all map to domain.ErrQuoteUnavailable: a missing quote
// is a per-symbol condition for the caller, not a failure.
func (c *Client) GetLatest(ctx context.Context, symbol string) (domain.Quote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Quote{}, fmt.Errorf("oracle: rate wait %s: %w", symbol, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + "/quotes/" + url.PathEscape(symbol) + "/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("oracle: build request %s: %w", symbol, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return domain.Quote{}, fmt.Errorf("oracle: %s timed out: %w", symbol, domain.ErrQuoteUnavailable)
		}
		return domain.Quote{}, fmt.Errorf("oracle: %s: %v: %w", symbol, err, domain.ErrQuoteUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("oracle: %s not found: %w", symbol, domain.ErrQuoteUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("oracle: %s status %d: %w", symbol, resp.StatusCode, domain.ErrQuoteUnavailable)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("oracle: read %s: %w", symbol, domain.ErrQuoteUnavailable)
	}

	var aq apiQuote
	if err := json.Unmarshal(body, &aq); err != nil {
		return domain.Quote{}, fmt.Errorf("oracle: decode %s: %v: %w", symbol, err, domain.ErrQuoteUnavailable)
	}

	q := domain.Quote{
		Symbol: symbol,
		Open:   aq.Open,
		High:   aq.High,
		Low:    aq.Low,
		Close:  aq.Close,
		Volume: aq.Volume,
	}
	if aq.AsOf != "" {
		if ts, err := time.Parse(time.RFC3339, aq.AsOf); err == nil {
			q.AsOf = ts
		}
	}
	if q.Close <= 0 {
		return domain.Quote{}, fmt.Errorf("oracle: %s has no close price: %w", symbol, domain.ErrQuoteUnavailable)
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteSource = (*Client)(nil)

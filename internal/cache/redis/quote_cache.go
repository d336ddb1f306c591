package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis string keys with a
// TTL. Each symbol's latest bar is stored as JSON at "quote:{symbol}";
// the TTL bounds staleness to well under one cycle.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.rdb}
}

func quoteKey(symbol string) string {
	return "quote:" + symbol
}

// Get retrieves the cached quote for a symbol. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (qc *QuoteCache) Get(ctx context.Context, symbol string) (domain.Quote, error) {
	data, err := qc.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Quote{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: decode quote %s: %w", symbol, err)
	}
	return q, nil
}

// Set stores the quote with the given TTL.
func (qc *QuoteCache) Set(ctx context.Context, q domain.Quote, ttl time.Duration) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: encode quote %s: %w", q.Symbol, err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(q.Symbol), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)

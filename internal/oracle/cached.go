package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/metrics"
)

// CachedOracle fronts a QuoteSource with an explicitly scoped cache. The
// TTL is short (a cycle or less) so prices never go stale across cycles;
// cache errors degrade to direct lookups.
type CachedOracle struct {
	source domain.QuoteSource
	cache  domain.QuoteCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedOracle wraps source with cache. A nil cache passes lookups
// straight through.
func NewCachedOracle(source domain.QuoteSource, cache domain.QuoteCache, ttl time.Duration, logger *slog.Logger) *CachedOracle {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedOracle{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "quote_oracle")),
	}
}

// GetLatest returns the cached quote when fresh, otherwise pulls from the
// source and populates the cache.
func (o *CachedOracle) GetLatest(ctx context.Context, symbol string) (domain.Quote, error) {
	if o.cache != nil {
		q, err := o.cache.Get(ctx, symbol)
		if err == nil {
			metrics.QuoteLookups.WithLabelValues("hit").Inc()
			return q, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("quote cache read failed, falling through",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := o.source.GetLatest(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrQuoteUnavailable) {
			metrics.QuoteLookups.WithLabelValues("unavailable").Inc()
		} else {
			metrics.QuoteLookups.WithLabelValues("error").Inc()
		}
		return domain.Quote{}, err
	}

	if o.cache != nil {
		if cacheErr := o.cache.Set(ctx, q, o.ttl); cacheErr != nil {
			o.logger.Warn("quote cache write failed",
				slog.String("symbol", symbol),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	metrics.QuoteLookups.WithLabelValues("miss").Inc()
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteSource = (*CachedOracle)(nil)

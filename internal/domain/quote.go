package domain

import (
	"context"
	"time"
)

// Quote is the latest daily bar for a symbol as reported by the market
// data layer.
type Quote struct {
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
	AsOf   time.Time `json:"as_of"`
}

// QuoteSource provides the latest quote for a symbol. A source never
// mutates engine state. Implementations return ErrQuoteUnavailable when
// no quote can be produced this cycle; callers treat that as a per-symbol
// skip, never a cycle failure.
type QuoteSource interface {
	GetLatest(ctx context.Context, symbol string) (Quote, error)
}

// QuoteCache is a short-TTL cache in front of a QuoteSource so repeated
// lookups within one cycle do not hit the upstream provider.
type QuoteCache interface {
	Get(ctx context.Context, symbol string) (Quote, error)
	Set(ctx context.Context, q Quote, ttl time.Duration) error
}

// Candidate is one entry of a ranked candidate list produced by an
// upstream screener. List order is rank; the engine never re-sorts.
type Candidate struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Score  float64 `json:"score"`
	// Volatility is an optional annualized volatility estimate carried
	// through from the screener; zero means no estimate.
	Volatility float64 `json:"volatility,omitempty"`
}

// CandidateSource supplies the ranked candidate list for one strategy.
type CandidateSource interface {
	Candidates(ctx context.Context, strategy string) ([]Candidate, error)
}

// Package feed warms the quote cache from the market-data collector's
// WebSocket stream so cycle-time lookups hit cache instead of the HTTP
// API. The feed is strictly optional: any failure here degrades to HTTP
// pulls, never to a failed cycle.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// QuoteFeed subscribes to last-bar updates for a symbol universe and
// writes them into the quote cache. It reconnects with backoff on
// disconnect.
type QuoteFeed struct {
	wsURL   string
	symbols []string
	cache   domain.QuoteCache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewQuoteFeed creates a feed for the given symbols.
func NewQuoteFeed(wsURL string, symbols []string, cache domain.QuoteCache, ttl time.Duration, logger *slog.Logger) *QuoteFeed {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QuoteFeed{
		wsURL:   wsURL,
		symbols: symbols,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "quote_feed")),
	}
}

// Run connects, subscribes, and pumps updates into the cache until ctx
// is cancelled. Reconnects with a fixed backoff on disconnect.
func (f *QuoteFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, feed idle")
		<-ctx.Done()
		return ctx.Err()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("quote stream disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

type subscribeMsg struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type quoteMsg struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
	AsOf   string  `json:"as_of"`
}

func (f *QuoteFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Action: "subscribe", Symbols: f.symbols}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("quote stream connected", slog.Int("symbols", len(f.symbols)))

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}

		var msg quoteMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Warn("dropping undecodable stream message", slog.String("error", err.Error()))
			continue
		}
		if msg.Type != "quote" || msg.Symbol == "" || msg.Close <= 0 {
			continue
		}

		q := domain.Quote{
			Symbol: msg.Symbol,
			Open:   msg.Open,
			High:   msg.High,
			Low:    msg.Low,
			Close:  msg.Close,
			Volume: msg.Volume,
		}
		if msg.AsOf != "" {
			if ts, err := time.Parse(time.RFC3339, msg.AsOf); err == nil {
				q.AsOf = ts
			}
		}
		if err := f.cache.Set(ctx, q, f.ttl); err != nil {
			f.logger.Warn("quote cache write failed",
				slog.String("symbol", msg.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

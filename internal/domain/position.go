// Package domain defines the core entities of the screener's paper
// portfolio engine and the narrow interfaces its components consume.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide normalizes a textual side value.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	default:
		return "", fmt.Errorf("domain: invalid side %q", s)
	}
}

// PositionKey identifies a position. At most one open position may exist
// per key within a portfolio.
type PositionKey struct {
	Symbol   string
	Strategy string
	Side     Side
}

// String renders the key in "SYMBOL/strategy/side" form, used in logs and
// as a stable map key.
func (k PositionKey) String() string {
	return k.Symbol + "/" + k.Strategy + "/" + string(k.Side)
}

// TrailingStop is the ratcheting stop sub-state of a position. StopPrice
// only ever moves in the favorable direction: up for long, down for short.
type TrailingStop struct {
	StopPrice     float64   `json:"stop_price"`
	TrailingPct   float64   `json:"trailing_pct"`
	HighWaterMark float64   `json:"high_water_mark"`
	CreatedDate   time.Time `json:"created_date"`
	LastUpdated   time.Time `json:"last_updated"`
}

// Position is an open paper-portfolio position tracked across cycles.
type Position struct {
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`
	Side     Side   `json:"side"`

	Quantity         float64 `json:"quantity"`
	EntryPrice       float64 `json:"entry_price"`
	CurrentPrice     float64 `json:"current_price"`
	MarketValue      float64 `json:"market_value"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`

	StopLoss       *float64       `json:"stop_loss,omitempty"`
	Exit           *ExitCondition `json:"exit,omitempty"`
	Trailing       *TrailingStop  `json:"trailing,omitempty"`
	MaxHoldingDays int            `json:"max_holding_days,omitempty"`

	EntryDate   time.Time `json:"entry_date"`
	LastUpdated time.Time `json:"last_updated"`
}

// Key returns the identity triple of the position.
func (p *Position) Key() PositionKey {
	return PositionKey{Symbol: p.Symbol, Strategy: p.Strategy, Side: p.Side}
}

// HoldingDays is the number of whole calendar days the position has been
// held as of the given date.
func (p *Position) HoldingDays(asOf time.Time) int {
	d := CalendarDaysBetween(p.EntryDate, asOf)
	if d < 0 {
		return 0
	}
	return d
}

// Revalue updates the price-derived fields from the latest price. Market
// value and PnL are signed by side: a short gains as price falls.
func (p *Position) Revalue(price float64, asOf time.Time) {
	p.CurrentPrice = price
	p.MarketValue = p.Quantity * price
	switch p.Side {
	case SideShort:
		p.UnrealizedPnL = (p.EntryPrice - price) * p.Quantity
	default:
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Quantity
	}
	if p.EntryPrice > 0 {
		p.UnrealizedPnLPct = p.UnrealizedPnL / (p.EntryPrice * p.Quantity) * 100
	}
	p.LastUpdated = asOf
}

// CalendarDaysBetween counts whole calendar days from a to b, ignoring
// the time-of-day component. Negative when b is before a.
func CalendarDaysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	at := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	bt := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(bt.Sub(at).Hours() / 24)
}

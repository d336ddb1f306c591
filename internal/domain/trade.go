package domain

import "time"

// TradeRecord is one closed position in the append-only trade ledger.
// Records are written exactly once, at close, and never mutated.
type TradeRecord struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Strategy    string    `json:"strategy"`
	Side        Side      `json:"side"`
	Quantity    float64   `json:"quantity"`
	EntryDate   time.Time `json:"entry_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitDate    time.Time `json:"exit_date"`
	ExitPrice   float64   `json:"exit_price"`
	ReturnPct   float64   `json:"return_pct"`
	ExitReason  string    `json:"exit_reason"`
	HoldingDays int       `json:"holding_days"`
}

// Return computes the signed realized return percentage for the fill.
func (t *TradeRecord) Return() float64 {
	if t.EntryPrice == 0 {
		return 0
	}
	switch t.Side {
	case SideShort:
		return (t.EntryPrice - t.ExitPrice) / t.EntryPrice * 100
	default:
		return (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
	}
}

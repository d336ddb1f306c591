package domain

// EntryStyle is the order style a strategy uses to enter. The paper
// engine fills everything at the candidate price; the style is carried
// through to reporting.
type EntryStyle string

const (
	EntryMarket EntryStyle = "market"
	EntryLimit  EntryStyle = "limit"
)

// StrategyConfig is the externally supplied, read-only configuration for
// one screening strategy. Sizing and default exit rules come from here.
type StrategyConfig struct {
	Name       string     `toml:"name"`
	Side       Side       `toml:"side"`
	EntryStyle EntryStyle `toml:"entry_style"`

	// RiskPerPosition is the fraction of account equity risked per
	// trade (distance to stop). MaxAllocationPct caps the notional of
	// any single position as a fraction of equity.
	RiskPerPosition  float64 `toml:"risk_per_position"`
	MaxAllocationPct float64 `toml:"max_allocation_pct"`
	MaxPositions     int     `toml:"max_positions"`

	// Default exit rules applied to every new position. Zero values
	// disable the corresponding rule.
	StopLossPct     float64 `toml:"stop_loss_pct"`
	ProfitTargetPct float64 `toml:"profit_target_pct"`
	TrailingStopPct float64 `toml:"trailing_stop_pct"`
	MaxHoldingDays  int     `toml:"max_holding_days"`
}

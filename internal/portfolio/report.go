package portfolio

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/risk"
)

// Report is the cycle summary emitted for the reporting layer: position
// counts by side and strategy, aggregate PnL, risk warnings, and which
// strategies failed this cycle.
type Report struct {
	Portfolio string    `json:"portfolio"`
	AsOf      time.Time `json:"as_of"`

	OpenPositions int                 `json:"open_positions"`
	ByStrategy    map[string]int      `json:"by_strategy"`
	BySide        map[domain.Side]int `json:"by_side"`

	Opened         int     `json:"opened"`
	Closed         int     `json:"closed"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	RealizedPnLPct float64 `json:"realized_pnl_pct"`

	Risk             risk.Summary `json:"risk"`
	Warnings         []string     `json:"warnings,omitempty"`
	FailedStrategies []string     `json:"failed_strategies,omitempty"`
	GeneratedAt      time.Time    `json:"generated_at"`
}

// String renders a compact human-readable summary for CLI output.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "portfolio %s @ %s: %d open (+%d/-%d)",
		r.Portfolio, r.AsOf.Format("2006-01-02"), r.OpenPositions, r.Opened, r.Closed)
	fmt.Fprintf(&b, ", unrealized %.2f", r.UnrealizedPnL)

	names := make([]string, 0, len(r.ByStrategy))
	for name := range r.ByStrategy {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %-20s %d", name, r.ByStrategy[name])
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w)
	}
	for _, s := range r.FailedStrategies {
		fmt.Fprintf(&b, "\n  failed: %s", s)
	}
	return b.String()
}

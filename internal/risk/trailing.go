package risk

import (
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// InitTrailingStop attaches a trailing stop to a freshly opened position.
// The high-water mark starts at the entry price; the initial stop sits
// trailingPct away on the adverse side.
func InitTrailingStop(p *domain.Position, trailingPct float64, now time.Time) {
	if trailingPct <= 0 {
		return
	}
	ts := &domain.TrailingStop{
		TrailingPct:   trailingPct,
		HighWaterMark: p.EntryPrice,
		CreatedDate:   now,
		LastUpdated:   now,
	}
	ts.StopPrice = stopFromMark(p.Side, ts.HighWaterMark, trailingPct)
	p.Trailing = ts
}

// UpdateTrailingStop ratchets the high-water mark and stop toward the
// favorable direction, then tests for a breach at the current price. The
// stop never relaxes: for a long it only rises, for a short it only
// falls. It returns true when the price has breached the stop and the
// position should close.
func UpdateTrailingStop(p *domain.Position, currentPrice float64, now time.Time) bool {
	ts := p.Trailing
	if ts == nil || currentPrice <= 0 {
		return false
	}

	switch p.Side {
	case domain.SideShort:
		if currentPrice < ts.HighWaterMark {
			ts.HighWaterMark = currentPrice
			if next := stopFromMark(p.Side, currentPrice, ts.TrailingPct); next < ts.StopPrice {
				ts.StopPrice = next
			}
			ts.LastUpdated = now
		}
		return currentPrice >= ts.StopPrice
	default:
		if currentPrice > ts.HighWaterMark {
			ts.HighWaterMark = currentPrice
			if next := stopFromMark(p.Side, currentPrice, ts.TrailingPct); next > ts.StopPrice {
				ts.StopPrice = next
			}
			ts.LastUpdated = now
		}
		return currentPrice <= ts.StopPrice
	}
}

func stopFromMark(side domain.Side, mark, trailingPct float64) float64 {
	if side == domain.SideShort {
		return mark * (1 + trailingPct)
	}
	return mark * (1 - trailingPct)
}

// Package risk computes position sizes, manages trailing stops, and
// produces advisory portfolio risk summaries.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// SizerConfig holds the volatility-scaling parameters for position sizing.
type SizerConfig struct {
	// TargetVol is the annualized volatility the sizer scales toward
	// when a volatility estimate accompanies a candidate. VolFloor
	// prevents division blow-ups on near-zero estimates.
	TargetVol float64
	VolFloor  float64
}

// Sizer turns account equity and strategy limits into share quantities.
type Sizer struct {
	cfg    SizerConfig
	logger *slog.Logger
}

// NewSizer creates a Sizer. Zero-valued cfg disables volatility scaling
// cleanly (scaling only applies when an estimate is supplied).
func NewSizer(cfg SizerConfig, logger *slog.Logger) *Sizer {
	if cfg.VolFloor <= 0 {
		cfg.VolFloor = 0.05
	}
	return &Sizer{cfg: cfg, logger: logger.With(slog.String("component", "risk_sizer"))}
}

// SizePosition computes the share quantity for a candidate entry.
//
// The quantity is the lesser of the risk-budget size
// (equity × risk_per_position / per-share risk to the stop) and the
// allocation cap (equity × max_allocation_pct / price). When the stop is
// degenerate (per-share risk ≤ 0) only the allocation cap applies; the
// entry is not rejected. A supplied volatility estimate scales the
// quantity down by min(1, target_vol / max(vol, floor)).
//
// It returns domain.ErrInvalidQuantity when the inputs cannot produce a
// positive quantity.
func (s *Sizer) SizePosition(equity float64, cfg domain.StrategyConfig, price, stopPrice float64, vol *float64) (float64, error) {
	if equity <= 0 || price <= 0 {
		return 0, fmt.Errorf("risk: size for price %.4f equity %.2f: %w", price, equity, domain.ErrInvalidQuantity)
	}

	allocCap := math.Inf(1)
	if cfg.MaxAllocationPct > 0 {
		allocCap = equity * cfg.MaxAllocationPct / price
	}

	qty := allocCap
	perShareRisk := perShareRisk(cfg.Side, price, stopPrice)
	if cfg.RiskPerPosition > 0 && perShareRisk > 0 {
		riskQty := equity * cfg.RiskPerPosition / perShareRisk
		qty = math.Min(riskQty, allocCap)
	} else if cfg.RiskPerPosition > 0 {
		// Degenerate stop: fall back to the allocation cap alone.
		s.logger.Warn("degenerate stop, sizing by allocation cap only",
			slog.String("strategy", cfg.Name),
			slog.Float64("price", price),
			slog.Float64("stop", stopPrice),
		)
	}

	if vol != nil && s.cfg.TargetVol > 0 {
		scale := math.Min(1, s.cfg.TargetVol/math.Max(*vol, s.cfg.VolFloor))
		qty *= scale
	}

	qty = math.Floor(qty)
	if qty <= 0 || math.IsInf(qty, 1) {
		return 0, fmt.Errorf("risk: size for %s at %.4f: %w", cfg.Name, price, domain.ErrInvalidQuantity)
	}
	return qty, nil
}

// perShareRisk is the adverse distance from entry to the stop; non-positive
// when the stop sits on the wrong side of the entry.
func perShareRisk(side domain.Side, price, stop float64) float64 {
	if stop <= 0 {
		return 0
	}
	if side == domain.SideShort {
		return stop - price
	}
	return price - stop
}

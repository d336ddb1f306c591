package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// Limits are the advisory portfolio-level concentration bounds. Breaches
// produce warnings in the summary, never forced liquidation.
type Limits struct {
	MaxPositionWeight        float64
	MaxStrategyConcentration float64
}

// Summary is the aggregate risk picture of one portfolio at cycle end.
type Summary struct {
	GrossExposure     float64            `json:"gross_exposure"`
	NetExposure       float64            `json:"net_exposure"`
	VaR95             float64            `json:"var_95"`
	MaxPositionWeight float64            `json:"max_position_weight"`
	Concentration     map[string]float64 `json:"concentration"`
	Warnings          []string           `json:"warnings"`
}

// zScore95 is the one-sided normal quantile for the 95% VaR estimate.
const zScore95 = 1.645

// Summarize computes exposure, a parametric VaR estimate from the
// cross-sectional dispersion of unrealized PnL percentages, and
// per-strategy concentration ratios for the given open positions.
func Summarize(positions []domain.Position, limits Limits) Summary {
	s := Summary{Concentration: map[string]float64{}}
	if len(positions) == 0 {
		return s
	}

	var pnlPcts []float64
	byStrategy := map[string]float64{}
	maxNotional := 0.0
	for _, p := range positions {
		notional := math.Abs(p.MarketValue)
		s.GrossExposure += notional
		if p.Side == domain.SideShort {
			s.NetExposure -= notional
		} else {
			s.NetExposure += notional
		}
		byStrategy[p.Strategy] += notional
		if notional > maxNotional {
			maxNotional = notional
		}
		pnlPcts = append(pnlPcts, p.UnrealizedPnLPct)
	}

	if s.GrossExposure > 0 {
		s.MaxPositionWeight = maxNotional / s.GrossExposure
		for name, n := range byStrategy {
			s.Concentration[name] = n / s.GrossExposure
		}
	}

	// Parametric VaR: treat the cross-sectional dispersion of per-position
	// returns as the one-period return volatility of the book.
	s.VaR95 = s.GrossExposure * stddev(pnlPcts) / 100 * zScore95

	if limits.MaxPositionWeight > 0 && s.MaxPositionWeight > limits.MaxPositionWeight {
		s.Warnings = append(s.Warnings, fmt.Sprintf(
			"single position weight %.1f%% exceeds limit %.1f%%",
			s.MaxPositionWeight*100, limits.MaxPositionWeight*100))
	}
	if limits.MaxStrategyConcentration > 0 {
		names := make([]string, 0, len(s.Concentration))
		for name := range s.Concentration {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if ratio := s.Concentration[name]; ratio > limits.MaxStrategyConcentration {
				s.Warnings = append(s.Warnings, fmt.Sprintf(
					"strategy %s concentration %.1f%% exceeds limit %.1f%%",
					name, ratio*100, limits.MaxStrategyConcentration*100))
			}
		}
	}

	return s
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(sq / float64(len(xs)-1))
}

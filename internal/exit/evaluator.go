// Package exit evaluates a position's stored exit rules against the
// latest market data and decides whether the position is due for close.
package exit

import (
	"log/slog"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// Close reasons recorded on the trade ledger.
const (
	ReasonStopLoss     = "stop loss"
	ReasonProfitTarget = "profit target"
	ReasonTimeExit     = "time exit"
	ReasonMaxHolding   = "max holding days"
	ReasonTrailingStop = "trailing stop"
)

// Decision is the outcome of evaluating one position for one cycle.
type Decision struct {
	Close     bool
	Reason    string
	ExitPrice float64
}

// Evaluator applies stop-loss, profit-target, and holding-period rules.
// It is pure with respect to I/O: the caller supplies the quote, so the
// evaluator can be exercised without a live market data source.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger.With(slog.String("component", "exit_evaluator"))}
}

// Evaluate inspects the position against the day's quote and returns a
// close decision. A position is never closed on its entry day; the first
// eligible check is one calendar day after entry. Stops are tested
// against the adverse extreme of the bar (low for longs, high for
// shorts) and profit rules against the favorable extreme, consistent
// with the side.
//
// Evaluate does not mutate the position; revaluation and trailing-stop
// ratcheting happen before it in the cycle.
func (e *Evaluator) Evaluate(p *domain.Position, q domain.Quote, now time.Time) Decision {
	if p.HoldingDays(now) < 1 {
		return Decision{}
	}

	if d := e.checkStopLoss(p, q); d.Close {
		return d
	}
	if p.Exit != nil {
		if d := e.checkCondition(p, *p.Exit, q, now); d.Close {
			return d
		}
	}
	if p.MaxHoldingDays > 0 && p.HoldingDays(now) >= p.MaxHoldingDays {
		return Decision{Close: true, Reason: ReasonMaxHolding, ExitPrice: q.Close}
	}
	return Decision{}
}

func (e *Evaluator) checkStopLoss(p *domain.Position, q domain.Quote) Decision {
	if p.StopLoss == nil {
		return Decision{}
	}
	sl := *p.StopLoss
	switch p.Side {
	case domain.SideShort:
		if q.High >= sl {
			return Decision{Close: true, Reason: ReasonStopLoss, ExitPrice: sl}
		}
	default:
		if q.Low <= sl {
			return Decision{Close: true, Reason: ReasonStopLoss, ExitPrice: sl}
		}
	}
	return Decision{}
}

// checkCondition walks the exit tree. Compound rules trigger when any
// child triggers; the first triggering child supplies the reason.
func (e *Evaluator) checkCondition(p *domain.Position, c domain.ExitCondition, q domain.Quote, now time.Time) Decision {
	switch c.Kind {
	case domain.ExitFixedPrice:
		return e.checkTarget(p, c.Target, q)
	case domain.ExitPercent:
		var target float64
		if p.Side == domain.SideShort {
			target = p.EntryPrice * (1 - c.Pct)
		} else {
			target = p.EntryPrice * (1 + c.Pct)
		}
		return e.checkTarget(p, target, q)
	case domain.ExitDaysRemaining:
		// Dateless legacy rules ("days:3") carry no anchor; the countdown
		// starts at the position's entry date.
		if c.CreatedDate.IsZero() {
			c.CreatedDate = p.EntryDate
		}
		if c.DaysRemaining(now) <= 0 {
			return Decision{Close: true, Reason: ReasonTimeExit, ExitPrice: q.Close}
		}
	case domain.ExitCompound:
		for _, child := range c.Children {
			if d := e.checkCondition(p, child, q, now); d.Close {
				return d
			}
		}
	}
	return Decision{}
}

// checkTarget tests the favorable extreme against a profit target and
// fills at the target level when reached.
func (e *Evaluator) checkTarget(p *domain.Position, target float64, q domain.Quote) Decision {
	if target <= 0 {
		return Decision{}
	}
	switch p.Side {
	case domain.SideShort:
		if q.Low <= target {
			return Decision{Close: true, Reason: ReasonProfitTarget, ExitPrice: target}
		}
	default:
		if q.High >= target {
			return Decision{Close: true, Reason: ReasonProfitTarget, ExitPrice: target}
		}
	}
	return Decision{}
}

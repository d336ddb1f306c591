// Package intake turns a strategy's ranked candidate list into new
// positions, respecting the strategy's open-slot budget and skipping
// symbols already held.
package intake

import (
	"log/slog"
	"time"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/risk"
)

// Book is the slice of the portfolio book the intake needs: slot
// accounting, held-key checks, and atomic adds.
type Book interface {
	CountForStrategy(strategy string) int
	Holds(key domain.PositionKey) bool
	Add(p domain.Position) error
}

// Intake consumes ranked candidates for one strategy per cycle.
type Intake struct {
	sizer  *risk.Sizer
	logger *slog.Logger
}

// New creates an Intake backed by the given sizer.
func New(sizer *risk.Sizer, logger *slog.Logger) *Intake {
	return &Intake{
		sizer:  sizer,
		logger: logger.With(slog.String("component", "signal_intake")),
	}
}

// Ingest walks candidates best-first and opens positions until the
// strategy's slot budget is filled or the list is exhausted. Candidates
// already held (same symbol, strategy, side) are skipped without touching
// the existing position, which is what makes re-running the same list
// idempotent. Each accepted candidate is sized through the risk sizer
// and added atomically: a candidate either becomes a full position or is
// skipped with a logged reason.
//
// It returns the number of positions opened.
func (in *Intake) Ingest(book Book, cfg domain.StrategyConfig, candidates []domain.Candidate, equity float64, now time.Time) int {
	openSlots := cfg.MaxPositions - book.CountForStrategy(cfg.Name)
	if openSlots <= 0 {
		in.logger.Debug("no open slots",
			slog.String("strategy", cfg.Name),
			slog.Int("max_positions", cfg.MaxPositions),
		)
		return 0
	}

	side := cfg.Side
	if side == "" {
		side = domain.SideLong
	}

	added := 0
	for _, cand := range candidates {
		if added >= openSlots {
			in.logger.Info("slot budget filled, skipping remaining candidates",
				slog.String("strategy", cfg.Name),
				slog.Int("added", added),
			)
			break
		}

		key := domain.PositionKey{Symbol: cand.Symbol, Strategy: cfg.Name, Side: side}
		if book.Holds(key) {
			in.logger.Debug("candidate already held, skipping",
				slog.String("position", key.String()),
			)
			continue
		}
		if cand.Price <= 0 {
			in.logger.Warn("candidate has no usable price, skipping",
				slog.String("symbol", cand.Symbol),
				slog.String("strategy", cfg.Name),
			)
			continue
		}

		pos, err := in.buildPosition(cfg, side, cand, equity, now)
		if err != nil {
			in.logger.Warn("candidate rejected by sizing, skipping",
				slog.String("symbol", cand.Symbol),
				slog.String("strategy", cfg.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := book.Add(pos); err != nil {
			in.logger.Warn("candidate rejected by book, skipping",
				slog.String("position", key.String()),
				slog.String("error", err.Error()),
			)
			continue
		}

		in.logger.Info("position opened",
			slog.String("position", key.String()),
			slog.Float64("quantity", pos.Quantity),
			slog.Float64("entry_price", pos.EntryPrice),
			slog.Float64("score", cand.Score),
		)
		added++
	}

	return added
}

func (in *Intake) buildPosition(cfg domain.StrategyConfig, side domain.Side, cand domain.Candidate, equity float64, now time.Time) (domain.Position, error) {
	var stopLoss *float64
	stopPrice := 0.0
	if cfg.StopLossPct > 0 {
		if side == domain.SideShort {
			stopPrice = cand.Price * (1 + cfg.StopLossPct)
		} else {
			stopPrice = cand.Price * (1 - cfg.StopLossPct)
		}
		stopLoss = &stopPrice
	}

	var vol *float64
	if cand.Volatility > 0 {
		v := cand.Volatility
		vol = &v
	}

	qty, err := in.sizer.SizePosition(equity, cfg, cand.Price, stopPrice, vol)
	if err != nil {
		return domain.Position{}, err
	}

	pos := domain.Position{
		Symbol:         cand.Symbol,
		Strategy:       cfg.Name,
		Side:           side,
		Quantity:       qty,
		EntryPrice:     cand.Price,
		EntryDate:      now,
		MaxHoldingDays: cfg.MaxHoldingDays,
		StopLoss:       stopLoss,
	}
	pos.Revalue(cand.Price, now)

	if cfg.ProfitTargetPct > 0 {
		ec := domain.PercentExit(cfg.ProfitTargetPct)
		pos.Exit = &ec
	}
	if cfg.TrailingStopPct > 0 {
		risk.InitTrailingStop(&pos, cfg.TrailingStopPct, now)
	}

	return pos, nil
}

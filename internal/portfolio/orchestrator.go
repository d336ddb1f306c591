package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/exit"
	"github.com/dkovacs/screenerbot/internal/intake"
	"github.com/dkovacs/screenerbot/internal/metrics"
	"github.com/dkovacs/screenerbot/internal/risk"
)

// Spec describes one portfolio: which strategies feed it, its account
// equity for sizing, and its advisory risk limits. In individual mode the
// app derives one Spec per strategy; in combined mode all strategies
// share one Spec. Specs never share persisted state.
type Spec struct {
	Name       string
	Equity     float64
	Strategies []domain.StrategyConfig
	Limits     risk.Limits
}

// Orchestrator runs the per-cycle sequence for one portfolio: load,
// ingest signals per strategy, revalue, ratchet trailing stops, evaluate
// exits, persist, and report.
type Orchestrator struct {
	spec       Spec
	store      domain.PositionStore
	ledger     domain.TradeLedger
	quotes     domain.QuoteSource
	candidates domain.CandidateSource
	locks      domain.LockManager
	evaluator  *exit.Evaluator
	intake     *intake.Intake
	logger     *slog.Logger

	lockTTL time.Duration
}

// NewOrchestrator wires an Orchestrator for one portfolio. locks may be
// nil when the deployment guarantees a single writer by scheduling.
func NewOrchestrator(
	spec Spec,
	store domain.PositionStore,
	ledger domain.TradeLedger,
	quotes domain.QuoteSource,
	candidates domain.CandidateSource,
	locks domain.LockManager,
	sizer *risk.Sizer,
	logger *slog.Logger,
) *Orchestrator {
	logger = logger.With(
		slog.String("component", "portfolio"),
		slog.String("portfolio", spec.Name),
	)
	return &Orchestrator{
		spec:       spec,
		store:      store,
		ledger:     ledger,
		quotes:     quotes,
		candidates: candidates,
		locks:      locks,
		evaluator:  exit.NewEvaluator(logger),
		intake:     intake.New(sizer, logger),
		logger:     logger,
		lockTTL:    5 * time.Minute,
	}
}

// RunCycle executes one batch cycle as of now. A failing strategy is
// isolated (logged, recorded in the report) while the rest of the cycle
// continues; a failing save is fatal for the cycle and leaves the
// previous durable snapshot intact.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) (Report, error) {
	started := time.Now()

	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, "portfolio:"+o.spec.Name, o.lockTTL)
		if err != nil {
			metrics.CyclesTotal.WithLabelValues(o.spec.Name, "locked").Inc()
			return Report{}, fmt.Errorf("portfolio %s: acquire lock: %w", o.spec.Name, err)
		}
		defer unlock()
	}

	positions, err := o.store.Load(ctx)
	if err != nil {
		// Load is fail-soft by contract; an error here means the backend
		// itself is unreachable, which we cannot safely write over.
		metrics.CyclesTotal.WithLabelValues(o.spec.Name, "failed").Inc()
		return Report{}, fmt.Errorf("portfolio %s: load positions: %w", o.spec.Name, err)
	}
	book := NewBook(positions)

	report := Report{
		Portfolio:  o.spec.Name,
		AsOf:       now,
		ByStrategy: map[string]int{},
		BySide:     map[domain.Side]int{},
	}

	// Signal intake, one strategy at a time. A strategy whose candidate
	// feed is unavailable is skipped; the rest of the cycle continues.
	for _, cfg := range o.spec.Strategies {
		cands, err := o.candidates.Candidates(ctx, cfg.Name)
		if err != nil {
			o.logger.Error("candidate feed failed, skipping strategy",
				slog.String("strategy", cfg.Name),
				slog.String("error", err.Error()),
			)
			report.FailedStrategies = append(report.FailedStrategies, cfg.Name)
			continue
		}
		report.Opened += o.intake.Ingest(book, cfg, cands, o.spec.Equity, now)
	}

	// Revalue, ratchet, and evaluate exits. Revaluation precedes exit
	// evaluation and ratcheting precedes breach testing, always within
	// the same cycle. Closes are only staged here; ledger records are
	// written after the position snapshot is durable, so a failed save
	// cannot leave a ledger record whose close never persisted.
	var closes []pendingClose
	for _, pos := range book.All() {
		if pc, ok := o.evaluatePosition(ctx, book, pos.Key(), now); ok {
			closes = append(closes, pc)
		}
	}

	if err := o.store.Save(ctx, book.All()); err != nil {
		metrics.CyclesTotal.WithLabelValues(o.spec.Name, "failed").Inc()
		return Report{}, fmt.Errorf("portfolio %s: save positions: %w", o.spec.Name, err)
	}

	o.appendCloses(ctx, book, closes, &report)

	o.fillReport(&report, book)
	metrics.CyclesTotal.WithLabelValues(o.spec.Name, "ok").Inc()
	metrics.OpenPositions.WithLabelValues(o.spec.Name).Set(float64(book.Len()))
	metrics.CycleDuration.WithLabelValues(o.spec.Name).Observe(time.Since(started).Seconds())

	o.logger.Info("cycle complete",
		slog.Int("open", book.Len()),
		slog.Int("opened", report.Opened),
		slog.Int("closed", report.Closed),
		slog.Float64("unrealized_pnl", report.UnrealizedPnL),
		slog.Any("failed_strategies", report.FailedStrategies),
	)
	return report, nil
}

// pendingClose is a close staged during exit evaluation. The position is
// already out of the book; the ledger record is not written until the
// position snapshot has been saved.
type pendingClose struct {
	pos domain.Position
	rec domain.TradeRecord
}

// evaluatePosition runs the per-position cycle steps. A symbol with no
// quote this cycle is left untouched: no revaluation, no ratchet, no
// close.
func (o *Orchestrator) evaluatePosition(ctx context.Context, book *Book, key domain.PositionKey, now time.Time) (pendingClose, bool) {
	q, err := o.quotes.GetLatest(ctx, key.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrQuoteUnavailable) {
			o.logger.Warn("quote unavailable, position left unchanged",
				slog.String("position", key.String()),
			)
		} else {
			o.logger.Error("quote lookup failed, position left unchanged",
				slog.String("position", key.String()),
				slog.String("error", err.Error()),
			)
		}
		return pendingClose{}, false
	}

	var decision exit.Decision
	book.Update(key, func(p *domain.Position) {
		p.Revalue(q.Close, now)

		breached := risk.UpdateTrailingStop(p, q.Close, now)
		if breached && p.HoldingDays(now) >= 1 {
			decision = exit.Decision{Close: true, Reason: exit.ReasonTrailingStop, ExitPrice: q.Close}
			return
		}
		decision = o.evaluator.Evaluate(p, q, now)
	})

	if !decision.Close {
		return pendingClose{}, false
	}
	return o.stageClose(book, key, decision, now)
}

// stageClose removes the position from the working set and builds its
// ledger record, to be appended once the snapshot is durable.
func (o *Orchestrator) stageClose(book *Book, key domain.PositionKey, d exit.Decision, now time.Time) (pendingClose, bool) {
	pos, ok := book.Remove(key)
	if !ok {
		return pendingClose{}, false
	}

	rec := domain.TradeRecord{
		ID:          uuid.New().String(),
		Symbol:      pos.Symbol,
		Strategy:    pos.Strategy,
		Side:        pos.Side,
		Quantity:    pos.Quantity,
		EntryDate:   pos.EntryDate,
		EntryPrice:  pos.EntryPrice,
		ExitDate:    now,
		ExitPrice:   d.ExitPrice,
		ExitReason:  d.Reason,
		HoldingDays: pos.HoldingDays(now),
	}
	rec.ReturnPct = rec.Return()
	return pendingClose{pos: pos, rec: rec}, true
}

// appendCloses writes the ledger record for every staged close and
// accounts the realized returns. The snapshot without these positions is
// already durable, so a crash before an append loses the record rather
// than duplicating it; an append error restores the position to the book
// and re-saves, so the close is retried next cycle instead of vanishing.
func (o *Orchestrator) appendCloses(ctx context.Context, book *Book, closes []pendingClose, report *Report) {
	restored := false
	for _, pc := range closes {
		key := pc.pos.Key()
		if err := o.ledger.Append(ctx, pc.rec); err != nil {
			o.logger.Error("ledger append failed, keeping position open",
				slog.String("position", key.String()),
				slog.String("error", err.Error()),
			)
			if addErr := book.Add(pc.pos); addErr != nil {
				o.logger.Error("could not restore position after ledger failure",
					slog.String("position", key.String()),
					slog.String("error", addErr.Error()),
				)
			} else {
				restored = true
			}
			continue
		}

		metrics.TradesClosed.WithLabelValues(o.spec.Name, pc.rec.Strategy, pc.rec.ExitReason).Inc()
		report.Closed++
		report.RealizedPnLPct += pc.rec.ReturnPct

		o.logger.Info("position closed",
			slog.String("position", key.String()),
			slog.String("reason", pc.rec.ExitReason),
			slog.Float64("exit_price", pc.rec.ExitPrice),
			slog.Float64("return_pct", pc.rec.ReturnPct),
			slog.Int("holding_days", pc.rec.HoldingDays),
		)
	}

	if restored {
		if err := o.store.Save(ctx, book.All()); err != nil {
			o.logger.Error("could not persist restored positions",
				slog.String("error", err.Error()),
			)
		}
	}
}

func (o *Orchestrator) fillReport(report *Report, book *Book) {
	open := book.All()
	for _, p := range open {
		report.ByStrategy[p.Strategy]++
		report.BySide[p.Side]++
		report.UnrealizedPnL += p.UnrealizedPnL
	}
	report.OpenPositions = len(open)
	report.Risk = risk.Summarize(open, o.spec.Limits)
	report.Warnings = report.Risk.Warnings
	report.GeneratedAt = time.Now().UTC()
}

// Snapshot loads the persisted book and reports on it without running a
// cycle. Nothing is revalued, closed, or written back.
func (o *Orchestrator) Snapshot(ctx context.Context, now time.Time) (Report, error) {
	positions, err := o.store.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("portfolio %s: load positions: %w", o.spec.Name, err)
	}
	book := NewBook(positions)

	report := Report{
		Portfolio:  o.spec.Name,
		AsOf:       now,
		ByStrategy: map[string]int{},
		BySide:     map[domain.Side]int{},
	}
	o.fillReport(&report, book)
	return report, nil
}

// SetLockTTL overrides the default advisory-lock TTL. Calls with a
// non-positive duration are ignored.
func (o *Orchestrator) SetLockTTL(d time.Duration) {
	if d > 0 {
		o.lockTTL = d
	}
}

// RunAll executes one cycle for every orchestrator concurrently. Each
// portfolio owns disjoint persisted state, so they are safe to run as
// parallel workers; one portfolio's failure does not cancel the others.
func RunAll(ctx context.Context, now time.Time, orchs []*Orchestrator) ([]Report, error) {
	reports := make([]Report, len(orchs))
	var g errgroup.Group
	for i, o := range orchs {
		g.Go(func() error {
			rep, err := o.RunCycle(ctx, now)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	err := g.Wait()
	return reports, err
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/metrics"
	"github.com/dkovacs/screenerbot/internal/portfolio"
	"github.com/dkovacs/screenerbot/internal/risk"
)

// archiveLedgerLimit bounds how many trades one archive snapshot carries.
const archiveLedgerLimit = 10_000

// runner pairs one orchestrator with the ledger backing it, so the modes
// can archive and report per portfolio.
type runner struct {
	name   string
	orch   *portfolio.Orchestrator
	ledger domain.TradeLedger
}

// buildRunners derives one runner per portfolio from the configuration.
// In combined mode all strategies feed a single portfolio; in individual
// mode each strategy gets its own portfolio with an even equity split.
func (a *App) buildRunners(deps *Dependencies) ([]*runner, error) {
	sizer := risk.NewSizer(risk.SizerConfig{
		TargetVol: a.cfg.Sizer.TargetVol,
		VolFloor:  a.cfg.Sizer.VolFloor,
	}, a.logger)
	limits := risk.Limits{
		MaxPositionWeight:        a.cfg.Portfolio.MaxPositionWeight,
		MaxStrategyConcentration: a.cfg.Portfolio.MaxStrategyConcentration,
	}

	var specs []portfolio.Spec
	if strings.ToLower(a.cfg.Portfolio.Mode) == "individual" {
		equity := a.cfg.Portfolio.Equity / float64(len(a.cfg.Strategy))
		for _, s := range a.cfg.Strategy {
			specs = append(specs, portfolio.Spec{
				Name:       a.cfg.Portfolio.Name + "-" + s.Name,
				Equity:     equity,
				Strategies: []domain.StrategyConfig{s},
				Limits:     limits,
			})
		}
	} else {
		specs = append(specs, portfolio.Spec{
			Name:       a.cfg.Portfolio.Name,
			Equity:     a.cfg.Portfolio.Equity,
			Strategies: a.cfg.Strategy,
			Limits:     limits,
		})
	}

	runners := make([]*runner, 0, len(specs))
	for _, spec := range specs {
		store, err := deps.PositionStore(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("app: position store for %s: %w", spec.Name, err)
		}
		ledger, err := deps.TradeLedger(spec.Name)
		if err != nil {
			return nil, fmt.Errorf("app: trade ledger for %s: %w", spec.Name, err)
		}

		orch := portfolio.NewOrchestrator(
			spec, store, ledger,
			deps.Quotes, deps.Candidates, deps.Locks,
			sizer, a.logger,
		)
		orch.SetLockTTL(a.cfg.Portfolio.LockTTL.Duration)
		runners = append(runners, &runner{name: spec.Name, orch: orch, ledger: ledger})
	}
	return runners, nil
}

// CycleMode runs one cycle for every portfolio and exits.
func (a *App) CycleMode(ctx context.Context, deps *Dependencies) error {
	runners, err := a.buildRunners(deps)
	if err != nil {
		return err
	}
	return a.runCycle(ctx, deps, runners)
}

// DaemonMode runs cycles on the configured interval until the context is
// cancelled. The metrics endpoint and feed warmer, when enabled, run for
// the daemon's whole lifetime.
func (a *App) DaemonMode(ctx context.Context, deps *Dependencies) error {
	runners, err := a.buildRunners(deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		port := a.cfg.Metrics.Port
		g.Go(func() error {
			a.logger.Info("metrics endpoint listening", slog.Int("port", port))
			return metrics.Serve(ctx, port)
		})
	}
	if deps.Feed != nil {
		g.Go(func() error {
			return deps.Feed.Run(ctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Interval.Duration)
		defer ticker.Stop()

		// First cycle immediately; later ones on the tick.
		if err := a.runCycle(ctx, deps, runners); err != nil {
			a.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := a.runCycle(ctx, deps, runners); err != nil {
					a.logger.Error("cycle failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	return g.Wait()
}

// ReportMode prints the current state of every portfolio without running
// a cycle: open positions, aggregate risk, and recent closed trades.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies) error {
	runners, err := a.buildRunners(deps)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, r := range runners {
		rep, err := r.orch.Snapshot(ctx, now)
		if err != nil {
			return err
		}
		fmt.Println(rep.String())

		trades, err := r.ledger.ListRecent(ctx, 10)
		if err != nil {
			a.logger.Warn("could not read trade ledger",
				slog.String("portfolio", r.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, t := range trades {
			fmt.Printf("  %s %s/%s/%s %s -> %s %+.2f%% (%s)\n",
				t.ExitDate.Format("2006-01-02"),
				t.Symbol, t.Strategy, t.Side,
				formatPrice(t.EntryPrice), formatPrice(t.ExitPrice),
				t.ReturnPct, t.ExitReason,
			)
		}
	}
	return nil
}

// runCycle executes one cycle across all portfolios, prints the reports,
// and archives the ledgers when an archiver is configured. Portfolio
// failures are surfaced but do not block the other portfolios' output.
func (a *App) runCycle(ctx context.Context, deps *Dependencies, runners []*runner) error {
	now := time.Now().UTC()

	orchs := make([]*portfolio.Orchestrator, len(runners))
	for i, r := range runners {
		orchs[i] = r.orch
	}

	reports, err := portfolio.RunAll(ctx, now, orchs)
	for _, rep := range reports {
		if rep.Portfolio == "" {
			continue // this portfolio's cycle failed
		}
		fmt.Println(rep.String())
	}
	if err != nil {
		return fmt.Errorf("app: run cycle: %w", err)
	}

	if deps.Archiver != nil {
		a.archiveLedgers(ctx, deps.Archiver, runners)
	}
	return nil
}

// archiveLedgers uploads a ledger snapshot per portfolio. Archival is
// best effort; the durable ledger on the primary backend is untouched.
func (a *App) archiveLedgers(ctx context.Context, archiver domain.LedgerArchiver, runners []*runner) {
	for _, r := range runners {
		records, err := r.ledger.ListRecent(ctx, archiveLedgerLimit)
		if err != nil {
			a.logger.Warn("ledger read failed, skipping archive",
				slog.String("portfolio", r.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(records) == 0 {
			continue
		}
		key, err := archiver.ArchiveLedger(ctx, r.name, records)
		if err != nil {
			a.logger.Warn("ledger archive failed",
				slog.String("portfolio", r.name),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.Info("ledger archived",
			slog.String("portfolio", r.name),
			slog.String("key", key),
		)
	}
}

func formatPrice(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

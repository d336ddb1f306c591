package portfolio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/screenerbot/internal/domain"
	"github.com/dkovacs/screenerbot/internal/exit"
	"github.com/dkovacs/screenerbot/internal/risk"
	"github.com/dkovacs/screenerbot/internal/store/memory"
)

// stubQuotes serves fixed bars per symbol; unknown symbols are
// unavailable, like a provider with a gap in coverage.
type stubQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
}

func newStubQuotes() *stubQuotes {
	return &stubQuotes{quotes: map[string]domain.Quote{}}
}

func (s *stubQuotes) set(symbol string, low, high, close float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[symbol] = domain.Quote{Symbol: symbol, Open: close, High: high, Low: low, Close: close}
}

func (s *stubQuotes) GetLatest(_ context.Context, symbol string) (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return q, nil
}

type fixture struct {
	orch       *Orchestrator
	store      *memory.PositionStore
	ledger     *memory.Ledger
	quotes     *stubQuotes
	candidates *memory.CandidateSource
}

func newFixture(t *testing.T, strategies ...domain.StrategyConfig) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		store:      memory.NewPositionStore(),
		ledger:     memory.NewLedger(),
		quotes:     newStubQuotes(),
		candidates: memory.NewCandidateSource(),
	}
	spec := Spec{
		Name:       "paper",
		Equity:     100_000,
		Strategies: strategies,
	}
	f.orch = NewOrchestrator(
		spec, f.store, f.ledger, f.quotes, f.candidates, nil,
		risk.NewSizer(risk.SizerConfig{}, logger), logger,
	)
	return f
}

func momentumStrategy() domain.StrategyConfig {
	return domain.StrategyConfig{
		Name:             "momentum",
		Side:             domain.SideLong,
		RiskPerPosition:  0.01,
		MaxAllocationPct: 0.20,
		MaxPositions:     5,
		StopLossPct:      0.05,
	}
}

func TestRunCycleOpensFromCandidates(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC)

	f.candidates.SetList("momentum", []domain.Candidate{
		{Symbol: "AAPL", Price: 100, Score: 95},
		{Symbol: "MSFT", Price: 200, Score: 90},
	})
	f.quotes.set("AAPL", 99, 101, 100)
	f.quotes.set("MSFT", 199, 201, 200)

	rep, err := f.orch.RunCycle(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Opened)
	assert.Equal(t, 0, rep.Closed)
	assert.Equal(t, 2, rep.OpenPositions)
	assert.Equal(t, 2, rep.ByStrategy["momentum"])

	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestRunCycleClosesOnStopLoss(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	entry := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	now := entry.AddDate(0, 0, 3)

	sl := 95.0
	f.store.Seed([]domain.Position{{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, EntryDate: entry, StopLoss: &sl,
	}})
	f.quotes.set("AAPL", 94, 99, 96)

	rep, err := f.orch.RunCycle(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Closed)
	assert.Equal(t, 0, rep.OpenPositions)

	trades, err := f.ledger.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, exit.ReasonStopLoss, trades[0].ExitReason)
	assert.Equal(t, 95.0, trades[0].ExitPrice)
	assert.Equal(t, 3, trades[0].HoldingDays)
	assert.InDelta(t, -5.0, trades[0].ReturnPct, 1e-9)
}

func TestRunCycleTrailingStopRatchetThenBreach(t *testing.T) {
	entry := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	seed := domain.Position{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, EntryDate: entry,
		Trailing: &domain.TrailingStop{
			TrailingPct:   0.25,
			HighWaterMark: 100,
			StopPrice:     75,
			CreatedDate:   entry,
		},
	}

	f := newFixture(t, momentumStrategy())
	f.store.Seed([]domain.Position{seed})

	// Day 1: rally to 120 lifts the stop to 90.
	f.quotes.set("AAPL", 100, 121, 120)
	rep, err := f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 1, rep.OpenPositions)

	saved, _ := f.store.Load(context.Background())
	require.Len(t, saved, 1)
	assert.Equal(t, 120.0, saved[0].Trailing.HighWaterMark)
	assert.Equal(t, 90.0, saved[0].Trailing.StopPrice)

	// Day 2: pullback to 110 leaves the stop pinned at 90.
	f.quotes.set("AAPL", 108, 121, 110)
	rep, err = f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Equal(t, 1, rep.OpenPositions)

	saved, _ = f.store.Load(context.Background())
	assert.Equal(t, 90.0, saved[0].Trailing.StopPrice)

	// Day 3: 95 holds above the stop.
	f.quotes.set("AAPL", 94.5, 111, 95)
	rep, err = f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Equal(t, 1, rep.OpenPositions)

	// Day 4: 89 breaches and the position closes.
	f.quotes.set("AAPL", 88, 96, 89)
	rep, err = f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Closed)

	trades, _ := f.ledger.ListRecent(context.Background(), 0)
	require.Len(t, trades, 1)
	assert.Equal(t, exit.ReasonTrailingStop, trades[0].ExitReason)
	assert.Equal(t, 89.0, trades[0].ExitPrice)
}

func TestRunCycleMissingQuoteLeavesPositionUntouched(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	entry := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	sl := 95.0
	seed := domain.Position{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, CurrentPrice: 104, EntryDate: entry, StopLoss: &sl,
	}
	seed.Revalue(104, entry)
	f.store.Seed([]domain.Position{seed})
	// No quote registered for AAPL this cycle.

	rep, err := f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Closed)

	saved, _ := f.store.Load(context.Background())
	require.Len(t, saved, 1)
	// Stale valuation is preserved, not zeroed.
	assert.Equal(t, 104.0, saved[0].CurrentPrice)
	assert.Equal(t, entry, saved[0].LastUpdated)
}

func TestRunCycleStrategyFailureIsIsolated(t *testing.T) {
	momentum := momentumStrategy()
	meanrev := momentumStrategy()
	meanrev.Name = "meanrev"

	f := newFixture(t, momentum, meanrev)
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC)

	f.candidates.SetError("momentum", errors.New("feed down"))
	f.candidates.SetList("meanrev", []domain.Candidate{{Symbol: "TSLA", Price: 50, Score: 80}})
	f.quotes.set("TSLA", 49, 51, 50)

	rep, err := f.orch.RunCycle(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, []string{"momentum"}, rep.FailedStrategies)
	assert.Equal(t, 1, rep.Opened)
	assert.Equal(t, 1, rep.ByStrategy["meanrev"])
}

func TestRunCycleSaveFailureIsFatal(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	f.store.SaveErr = errors.New("disk full")

	f.candidates.SetList("momentum", []domain.Candidate{{Symbol: "AAPL", Price: 100, Score: 95}})
	f.quotes.set("AAPL", 99, 101, 100)

	_, err := f.orch.RunCycle(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save positions")
}

func TestRunCycleSaveFailureDoesNotDuplicateTrade(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	entry := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	sl := 95.0
	f.store.Seed([]domain.Position{{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, EntryDate: entry, StopLoss: &sl,
	}})
	f.quotes.set("AAPL", 90, 99, 92)

	// Cycle 1: the stop is breached but the save fails, so the previous
	// snapshot (with the position still open) stays durable. Nothing may
	// reach the ledger.
	f.store.SaveErr = errors.New("disk full")
	_, err := f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 1))
	require.Error(t, err)

	trades, err := f.ledger.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, trades)

	// Cycle 2: the backend recovers and the close goes through exactly
	// once.
	f.store.SaveErr = nil
	rep, err := f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Closed)

	trades, err = f.ledger.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, exit.ReasonStopLoss, trades[0].ExitReason)
	assert.Equal(t, 2, trades[0].HoldingDays)
}

func TestRunCycleLedgerFailureKeepsPositionOpen(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	entry := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	sl := 95.0
	f.store.Seed([]domain.Position{{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, EntryDate: entry, StopLoss: &sl,
	}})
	f.quotes.set("AAPL", 94, 99, 96)
	f.ledger.AppendErr = errors.New("ledger unwritable")

	rep, err := f.orch.RunCycle(context.Background(), entry.AddDate(0, 0, 2))
	require.NoError(t, err)

	// The close could not be recorded, so the position survives.
	assert.Equal(t, 0, rep.Closed)
	assert.Equal(t, 1, rep.OpenPositions)

	trades, _ := f.ledger.ListRecent(context.Background(), 0)
	assert.Empty(t, trades)

	// The restored position is persisted, not just held in memory.
	saved, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "AAPL", saved[0].Symbol)
}

func TestRunCycleNeverClosesOnEntryDay(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	now := time.Date(2026, 8, 30, 21, 0, 0, 0, time.UTC)

	f.candidates.SetList("momentum", []domain.Candidate{{Symbol: "AAPL", Price: 100, Score: 95}})
	// The same-day bar already trades through the fresh stop.
	f.quotes.set("AAPL", 90, 101, 92)

	rep, err := f.orch.RunCycle(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Opened)
	assert.Equal(t, 0, rep.Closed)
	assert.Equal(t, 1, rep.OpenPositions)
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	f := newFixture(t, momentumStrategy())
	entry := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	seed := domain.Position{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 100, EntryPrice: 100, EntryDate: entry,
	}
	seed.Revalue(110, entry)
	f.store.Seed([]domain.Position{seed})
	f.quotes.set("AAPL", 50, 55, 52) // would close if a cycle ran

	rep, err := f.orch.Snapshot(context.Background(), entry.AddDate(0, 0, 5))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.OpenPositions)
	assert.InDelta(t, 1000.0, rep.UnrealizedPnL, 1e-9)

	saved, _ := f.store.Load(context.Background())
	require.Len(t, saved, 1)
	assert.Equal(t, 110.0, saved[0].CurrentPrice)
}

func TestRunAllIsolatesPortfolios(t *testing.T) {
	good := newFixture(t, momentumStrategy())
	good.candidates.SetList("momentum", []domain.Candidate{{Symbol: "AAPL", Price: 100, Score: 95}})
	good.quotes.set("AAPL", 99, 101, 100)

	bad := newFixture(t, momentumStrategy())
	bad.store.SaveErr = errors.New("disk full")
	bad.candidates.SetList("momentum", []domain.Candidate{{Symbol: "MSFT", Price: 200, Score: 90}})
	bad.quotes.set("MSFT", 199, 201, 200)

	reports, err := RunAll(context.Background(), time.Now().UTC(), []*Orchestrator{good.orch, bad.orch})
	require.Error(t, err)

	// The failing portfolio does not stop the healthy one.
	require.Len(t, reports, 2)
	assert.Equal(t, "paper", reports[0].Portfolio)
	assert.Equal(t, 1, reports[0].Opened)
	assert.Empty(t, reports[1].Portfolio)
}

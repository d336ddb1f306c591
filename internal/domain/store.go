package domain

import (
	"context"
	"time"
)

// PositionStore persists the full open-position set of one portfolio.
// The engine loads the working set at cycle start and writes it back at
// cycle end; Save must be atomic from the caller's perspective (either
// the full set is durable or the previous durable state is retained).
type PositionStore interface {
	// Load returns the persisted open positions. Implementations fail
	// soft: a missing or corrupt persisted state yields an empty (or
	// partial) set and a logged warning, never an error that would
	// abort the cycle.
	Load(ctx context.Context) ([]Position, error)
	Save(ctx context.Context, positions []Position) error
}

// TradeLedger is the append-only history of closed trades.
type TradeLedger interface {
	Append(ctx context.Context, rec TradeRecord) error
	ListRecent(ctx context.Context, limit int) ([]TradeRecord, error)
}

// LockManager serializes writers on a shared resource. A portfolio's
// store has exactly one writer at a time; the orchestrator acquires the
// portfolio lock for the duration of a cycle.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// LedgerArchiver uploads a snapshot of the trade ledger to cold storage.
type LedgerArchiver interface {
	ArchiveLedger(ctx context.Context, portfolio string, records []TradeRecord) (string, error)
}

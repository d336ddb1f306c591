// Package memory implements the persistence interfaces with in-memory
// state. Used for tests and ephemeral runs; nothing survives the process.
package memory

import (
	"context"
	"sync"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// PositionStore holds the persisted snapshot in memory.
type PositionStore struct {
	mu        sync.Mutex
	positions []domain.Position

	// SaveErr, when set, is returned by Save. Lets tests exercise the
	// persistence-failure path.
	SaveErr error
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore { return &PositionStore{} }

// Seed replaces the persisted snapshot.
func (s *PositionStore) Seed(positions []domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append([]domain.Position(nil), positions...)
}

func (s *PositionStore) Load(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Position(nil), s.positions...), nil
}

func (s *PositionStore) Save(_ context.Context, positions []domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.positions = append([]domain.Position(nil), positions...)
	return nil
}

// Ledger is an in-memory append-only trade history.
type Ledger struct {
	mu      sync.Mutex
	records []domain.TradeRecord

	AppendErr error
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger { return &Ledger{} }

func (l *Ledger) Append(_ context.Context, rec domain.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.AppendErr != nil {
		return l.AppendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *Ledger) ListRecent(_ context.Context, limit int) ([]domain.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]domain.TradeRecord(nil), l.records...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CandidateSource serves fixed candidate lists per strategy.
type CandidateSource struct {
	mu    sync.Mutex
	lists map[string][]domain.Candidate
	errs  map[string]error
}

// NewCandidateSource creates an empty source.
func NewCandidateSource() *CandidateSource {
	return &CandidateSource{
		lists: map[string][]domain.Candidate{},
		errs:  map[string]error{},
	}
}

// SetList installs the ranked list for a strategy.
func (s *CandidateSource) SetList(strategy string, cands []domain.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[strategy] = cands
}

// SetError makes the strategy's feed fail with err.
func (s *CandidateSource) SetError(strategy string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[strategy] = err
}

func (s *CandidateSource) Candidates(_ context.Context, strategy string) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[strategy]; err != nil {
		return nil, err
	}
	return append([]domain.Candidate(nil), s.lists[strategy]...), nil
}

// Compile-time interface checks.
var (
	_ domain.PositionStore   = (*PositionStore)(nil)
	_ domain.TradeLedger     = (*Ledger)(nil)
	_ domain.CandidateSource = (*CandidateSource)(nil)
)

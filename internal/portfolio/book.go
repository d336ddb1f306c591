// Package portfolio composes intake, revaluation, risk, and exit
// evaluation into the per-cycle engine, and owns the in-memory working
// set of positions between load and save.
package portfolio

import (
	"fmt"
	"sort"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// Book is the in-memory open-position set for one portfolio during one
// cycle. It enforces uniqueness of (symbol, strategy, side) and is the
// only place positions are added, mutated, or removed; persistence
// happens once, at cycle end, through a PositionStore.
//
// Book is not safe for concurrent use. Each portfolio runs single-writer
// batch cycles, so no locking is needed.
type Book struct {
	positions map[domain.PositionKey]*domain.Position
}

// NewBook creates a Book seeded with the given positions. Duplicate keys
// in the input keep the first occurrence; later duplicates are dropped so
// a corrupt persisted file cannot violate the uniqueness invariant.
func NewBook(positions []domain.Position) *Book {
	b := &Book{positions: make(map[domain.PositionKey]*domain.Position, len(positions))}
	for i := range positions {
		p := positions[i]
		if _, ok := b.positions[p.Key()]; ok {
			continue
		}
		b.positions[p.Key()] = &p
	}
	return b
}

// Add inserts a new position. It returns domain.ErrAlreadyExists when an
// open position with the same (symbol, strategy, side) is present, and
// domain.ErrInvalidQuantity for non-positive quantities.
func (b *Book) Add(p domain.Position) error {
	if p.Quantity <= 0 {
		return fmt.Errorf("book: add %s: %w", p.Key(), domain.ErrInvalidQuantity)
	}
	key := p.Key()
	if _, ok := b.positions[key]; ok {
		return fmt.Errorf("book: add %s: %w", key, domain.ErrAlreadyExists)
	}
	b.positions[key] = &p
	return nil
}

// Get returns a copy of the position for key, if present.
func (b *Book) Get(key domain.PositionKey) (domain.Position, bool) {
	p, ok := b.positions[key]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Update applies mutate to the position for key. It is a no-op when the
// key is absent.
func (b *Book) Update(key domain.PositionKey, mutate func(*domain.Position)) {
	if p, ok := b.positions[key]; ok {
		mutate(p)
	}
}

// Remove atomically removes and returns the position for key.
func (b *Book) Remove(key domain.PositionKey) (domain.Position, bool) {
	p, ok := b.positions[key]
	if !ok {
		return domain.Position{}, false
	}
	delete(b.positions, key)
	return *p, true
}

// Len returns the number of open positions.
func (b *Book) Len() int { return len(b.positions) }

// CountForStrategy returns the number of open positions for a strategy.
func (b *Book) CountForStrategy(strategy string) int {
	n := 0
	for key := range b.positions {
		if key.Strategy == strategy {
			n++
		}
	}
	return n
}

// OpenForStrategy returns copies of the open positions belonging to one
// strategy, sorted by key.
func (b *Book) OpenForStrategy(strategy string) []domain.Position {
	var out []domain.Position
	for key, p := range b.positions {
		if key.Strategy == strategy {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

// Holds reports whether an open position exists for the key.
func (b *Book) Holds(key domain.PositionKey) bool {
	_, ok := b.positions[key]
	return ok
}

// All returns copies of every open position in a stable order (sorted by
// key), suitable for persistence and reporting.
func (b *Book) All() []domain.Position {
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}

package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/screenerbot/internal/domain"
)

func pos(symbol, strategy string, side domain.Side) domain.Position {
	return domain.Position{
		Symbol:     symbol,
		Strategy:   strategy,
		Side:       side,
		Quantity:   10,
		EntryPrice: 100,
		EntryDate:  time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestBookAddUniqueness(t *testing.T) {
	b := NewBook(nil)

	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))

	err := b.Add(pos("AAPL", "momentum", domain.SideLong))
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	// Different side or strategy is a different position.
	assert.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideShort)))
	assert.NoError(t, b.Add(pos("AAPL", "meanrev", domain.SideLong)))
	assert.Equal(t, 3, b.Len())
}

func TestBookAddRejectsNonPositiveQuantity(t *testing.T) {
	b := NewBook(nil)

	p := pos("AAPL", "momentum", domain.SideLong)
	p.Quantity = 0
	assert.ErrorIs(t, b.Add(p), domain.ErrInvalidQuantity)

	p.Quantity = -5
	assert.ErrorIs(t, b.Add(p), domain.ErrInvalidQuantity)
	assert.Equal(t, 0, b.Len())
}

func TestNewBookDropsDuplicates(t *testing.T) {
	first := pos("AAPL", "momentum", domain.SideLong)
	first.Quantity = 10
	dup := pos("AAPL", "momentum", domain.SideLong)
	dup.Quantity = 99

	b := NewBook([]domain.Position{first, dup})

	assert.Equal(t, 1, b.Len())
	got, ok := b.Get(first.Key())
	require.True(t, ok)
	assert.Equal(t, 10.0, got.Quantity)
}

func TestBookUpdate(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))
	key := domain.PositionKey{Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong}

	b.Update(key, func(p *domain.Position) {
		p.Revalue(120, time.Now())
	})

	got, ok := b.Get(key)
	require.True(t, ok)
	assert.Equal(t, 120.0, got.CurrentPrice)

	// Absent keys are a no-op.
	b.Update(domain.PositionKey{Symbol: "MSFT", Strategy: "momentum", Side: domain.SideLong}, func(p *domain.Position) {
		t.Fatal("mutate called for absent key")
	})
}

func TestBookRemove(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))
	key := domain.PositionKey{Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong}

	got, ok := b.Remove(key)
	assert.True(t, ok)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, 0, b.Len())

	_, ok = b.Remove(key)
	assert.False(t, ok)
}

func TestBookCountForStrategy(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))
	require.NoError(t, b.Add(pos("MSFT", "momentum", domain.SideLong)))
	require.NoError(t, b.Add(pos("TSLA", "meanrev", domain.SideShort)))

	assert.Equal(t, 2, b.CountForStrategy("momentum"))
	assert.Equal(t, 1, b.CountForStrategy("meanrev"))
	assert.Equal(t, 0, b.CountForStrategy("value"))
}

func TestBookOpenForStrategy(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.Add(pos("MSFT", "momentum", domain.SideLong)))
	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))
	require.NoError(t, b.Add(pos("TSLA", "meanrev", domain.SideShort)))

	got := b.OpenForStrategy("momentum")
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "MSFT", got[1].Symbol)

	assert.Empty(t, b.OpenForStrategy("value"))
}

func TestBookAllSortedCopies(t *testing.T) {
	b := NewBook(nil)
	require.NoError(t, b.Add(pos("MSFT", "momentum", domain.SideLong)))
	require.NoError(t, b.Add(pos("AAPL", "momentum", domain.SideLong)))

	all := b.All()
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)

	// Mutating the returned slice must not leak into the book.
	all[0].Quantity = 999
	got, _ := b.Get(all[0].Key())
	assert.Equal(t, 10.0, got.Quantity)
}

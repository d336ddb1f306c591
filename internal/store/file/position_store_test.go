package file

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/screenerbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPositions() []domain.Position {
	entry := time.Date(2026, 8, 25, 21, 0, 0, 0, time.UTC)
	sl := 95.0
	ec := domain.AnyExit(domain.PercentExit(0.15), domain.DaysExit(5, entry))

	long := domain.Position{
		Symbol: "AAPL", Strategy: "momentum", Side: domain.SideLong,
		Quantity: 200, EntryPrice: 100, EntryDate: entry,
		StopLoss: &sl, Exit: &ec, MaxHoldingDays: 30,
		Trailing: &domain.TrailingStop{
			TrailingPct: 0.25, StopPrice: 90, HighWaterMark: 120, CreatedDate: entry,
		},
	}
	long.Revalue(110, entry.AddDate(0, 0, 2))

	short := domain.Position{
		Symbol: "TSLA", Strategy: "meanrev", Side: domain.SideShort,
		Quantity: 50, EntryPrice: 200, EntryDate: entry,
	}
	short.Revalue(190, entry.AddDate(0, 0, 2))

	return []domain.Position{long, short}
}

func TestPositionStoreRoundTrip(t *testing.T) {
	store, err := NewPositionStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	want := testPositions()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, want[0].Symbol, got[0].Symbol)
	assert.Equal(t, want[0].Side, got[0].Side)
	assert.Equal(t, want[0].Quantity, got[0].Quantity)
	assert.Equal(t, want[0].EntryDate, got[0].EntryDate)
	require.NotNil(t, got[0].StopLoss)
	assert.Equal(t, 95.0, *got[0].StopLoss)
	require.NotNil(t, got[0].Exit)
	assert.Equal(t, want[0].Exit.String(), got[0].Exit.String())
	require.NotNil(t, got[0].Trailing)
	assert.Equal(t, 90.0, got[0].Trailing.StopPrice)
	assert.Equal(t, 120.0, got[0].Trailing.HighWaterMark)

	// Derived fields are rebuilt on load.
	assert.InDelta(t, want[0].UnrealizedPnL, got[0].UnrealizedPnL, 1e-9)
	assert.InDelta(t, want[1].UnrealizedPnL, got[1].UnrealizedPnL, 1e-9)
	assert.Nil(t, got[1].StopLoss)
	assert.Nil(t, got[1].Trailing)
}

func TestPositionStoreLoadMissingFile(t *testing.T) {
	store, err := NewPositionStore(t.TempDir(), testLogger())
	require.NoError(t, err)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPositionStoreSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(dir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPositions()))

	// Corrupt one row in place: blank out the quantity of the first
	// data row.
	data, err := os.ReadFile(filepath.Join(dir, "positions.csv"))
	require.NoError(t, err)
	content := strings.Replace(string(data), "200", "not-a-number", 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.csv"), []byte(content), 0o644))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TSLA", got[0].Symbol)
}

func TestPositionStoreUnparseableFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(dir, testLogger())
	require.NoError(t, err)

	bad := "symbol,strategy\n\"unterminated"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.csv"), []byte(bad), 0o644))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPositionStoreCorruptFileRecoversFromMirror(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(dir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPositions()))

	// A CSV that no longer parses at all must not empty the book while
	// the mirror still holds the last saved snapshot.
	bad := "symbol,strategy\n\"unterminated"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.csv"), []byte(bad), 0o644))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, "TSLA", got[1].Symbol)
}

func TestPositionStoreJSONMirrorFallback(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(dir, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPositions()))

	// Losing the CSV falls back to the JSON mirror.
	require.NoError(t, os.Remove(filepath.Join(dir, "positions.csv")))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Symbol)
	require.NotNil(t, got[0].Exit)
	assert.Equal(t, domain.ExitCompound, got[0].Exit.Kind)
}

func TestPositionStoreSaveReplacesSnapshot(t *testing.T) {
	store, err := NewPositionStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testPositions()))
	require.NoError(t, store.Save(ctx, nil))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPositionStoreNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(dir, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), testPositions()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"positions.csv", "positions.json"}, names)
}

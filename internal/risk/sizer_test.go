package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkovacs/screenerbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSizePosition(t *testing.T) {
	sizer := NewSizer(SizerConfig{}, testLogger())

	cfg := domain.StrategyConfig{
		Name:             "momentum",
		RiskPerPosition:  0.01,
		MaxAllocationPct: 0.25,
	}

	t.Run("risk budget binds", func(t *testing.T) {
		// Risk budget: 100000 * 0.01 / (100 - 95) = 200 shares.
		// Allocation cap: 100000 * 0.25 / 100 = 250 shares.
		qty, err := sizer.SizePosition(100_000, cfg, 100, 95, nil)
		require.NoError(t, err)
		assert.Equal(t, 200.0, qty)
	})

	t.Run("allocation cap binds", func(t *testing.T) {
		loose := cfg
		loose.RiskPerPosition = 0.05
		qty, err := sizer.SizePosition(100_000, loose, 100, 95, nil)
		require.NoError(t, err)
		assert.Equal(t, 250.0, qty)
	})

	t.Run("quantity is floored to whole shares", func(t *testing.T) {
		qty, err := sizer.SizePosition(100_000, cfg, 100, 97, nil)
		require.NoError(t, err)
		// 1000 / 3 = 333.33 -> 333
		assert.Equal(t, 333.0, qty)
	})

	t.Run("degenerate stop falls back to allocation cap", func(t *testing.T) {
		qty, err := sizer.SizePosition(100_000, cfg, 100, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, 250.0, qty)
	})

	t.Run("stop on wrong side of entry is degenerate", func(t *testing.T) {
		qty, err := sizer.SizePosition(100_000, cfg, 100, 105, nil)
		require.NoError(t, err)
		assert.Equal(t, 250.0, qty)
	})

	t.Run("degenerate stop without allocation cap errors", func(t *testing.T) {
		uncapped := cfg
		uncapped.MaxAllocationPct = 0
		_, err := sizer.SizePosition(100_000, uncapped, 100, 0, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("short side risks the distance up to the stop", func(t *testing.T) {
		short := cfg
		short.Side = domain.SideShort
		// Risk budget: 100000 * 0.01 / (110 - 100) = 100 shares.
		qty, err := sizer.SizePosition(100_000, short, 100, 110, nil)
		require.NoError(t, err)
		assert.Equal(t, 100.0, qty)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := sizer.SizePosition(0, cfg, 100, 95, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

		_, err = sizer.SizePosition(100_000, cfg, 0, 95, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})
}

func TestSizePositionVolScaling(t *testing.T) {
	sizer := NewSizer(SizerConfig{TargetVol: 0.20, VolFloor: 0.05}, testLogger())

	cfg := domain.StrategyConfig{
		Name:             "momentum",
		RiskPerPosition:  0.01,
		MaxAllocationPct: 0.25,
	}

	t.Run("high volatility scales the size down", func(t *testing.T) {
		vol := 0.40
		qty, err := sizer.SizePosition(100_000, cfg, 100, 95, &vol)
		require.NoError(t, err)
		// 200 shares scaled by 0.20/0.40.
		assert.Equal(t, 100.0, qty)
	})

	t.Run("low volatility never scales up", func(t *testing.T) {
		vol := 0.10
		qty, err := sizer.SizePosition(100_000, cfg, 100, 95, &vol)
		require.NoError(t, err)
		assert.Equal(t, 200.0, qty)
	})

	t.Run("near-zero estimate is floored", func(t *testing.T) {
		vol := 0.001
		qty, err := sizer.SizePosition(100_000, cfg, 100, 95, &vol)
		require.NoError(t, err)
		// max(vol, floor) = 0.05, scale capped at 1.
		assert.Equal(t, 200.0, qty)
	})

	t.Run("no estimate means no scaling", func(t *testing.T) {
		qty, err := sizer.SizePosition(100_000, cfg, 100, 95, nil)
		require.NoError(t, err)
		assert.Equal(t, 200.0, qty)
	})
}

package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExitCondition(t *testing.T) {
	created := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		input   string
		want    ExitCondition
		wantErr bool
	}{
		{
			name:  "fixed price",
			input: "price:110.5",
			want:  FixedPriceExit(110.5),
		},
		{
			name:  "percent",
			input: "pct:0.15",
			want:  PercentExit(0.15),
		},
		{
			name:  "days with created date",
			input: "days:3@2026-08-30",
			want:  DaysExit(3, created),
		},
		{
			name:  "days without created date",
			input: "days:5",
			want:  DaysExit(5, time.Time{}),
		},
		{
			name:  "compound",
			input: "any(price:110.5|days:5@2026-08-30)",
			want:  AnyExit(FixedPriceExit(110.5), DaysExit(5, created)),
		},
		{
			name:  "nested compound",
			input: "any(pct:0.1|any(price:90|days:2@2026-08-30))",
			want: AnyExit(
				PercentExit(0.1),
				AnyExit(FixedPriceExit(90), DaysExit(2, created)),
			),
		},
		{
			name:  "legacy bare number reads as fixed price",
			input: "123.45",
			want:  FixedPriceExit(123.45),
		},
		{
			name:  "surrounding whitespace",
			input: "  price:50  ",
			want:  FixedPriceExit(50),
		},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown kind", input: "ratio:2", wantErr: true},
		{name: "garbage", input: "close-it-now", wantErr: true},
		{name: "bad days", input: "days:soon", wantErr: true},
		{name: "bad date", input: "days:3@yesterday", wantErr: true},
		{name: "empty compound", input: "any()", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExitCondition(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExitConditionStringRoundTrip(t *testing.T) {
	created := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	conds := []ExitCondition{
		FixedPriceExit(110.5),
		PercentExit(0.15),
		DaysExit(3, created),
		AnyExit(FixedPriceExit(110.5), DaysExit(5, created), PercentExit(0.2)),
	}
	for _, c := range conds {
		t.Run(c.String(), func(t *testing.T) {
			got, err := ParseExitCondition(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
}

func TestDaysRemaining(t *testing.T) {
	created := time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC)
	c := DaysExit(3, created)

	day := func(offset int) time.Time {
		return created.AddDate(0, 0, offset)
	}

	assert.Equal(t, 3, c.DaysRemaining(day(0)))
	assert.Equal(t, 2, c.DaysRemaining(day(1)))
	// A second evaluation on the same day does not consume another day.
	assert.Equal(t, 2, c.DaysRemaining(day(1).Add(4*time.Hour)))
	assert.Equal(t, 1, c.DaysRemaining(day(2)))
	assert.Equal(t, 0, c.DaysRemaining(day(3)))
	assert.Equal(t, -1, c.DaysRemaining(day(4)))

	// A clock that jumps backward does not inflate the countdown.
	assert.Equal(t, 3, c.DaysRemaining(day(-2)))
}

func TestExitConditionJSON(t *testing.T) {
	t.Run("object round trip carries text", func(t *testing.T) {
		c := AnyExit(PercentExit(0.15), DaysExit(5, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)))

		data, err := json.Marshal(c)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"text":"any(pct:0.15|days:5@2026-08-30)"`)

		var got ExitCondition
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, c.Kind, got.Kind)
		assert.Len(t, got.Children, 2)
	})

	t.Run("bare string accepted", func(t *testing.T) {
		var got ExitCondition
		require.NoError(t, json.Unmarshal([]byte(`"price:99.5"`), &got))
		assert.Equal(t, FixedPriceExit(99.5), got)
	})
}

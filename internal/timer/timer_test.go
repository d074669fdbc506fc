package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDue(t *testing.T) {
	ref := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value int
		unit  Unit
		want  time.Time
	}{
		{"one day", 1, UnitDays, ref.Add(24 * time.Hour)},
		{"ten days", 10, UnitDays, ref.Add(10 * 24 * time.Hour)},
		{"two weeks", 2, UnitWeeks, ref.Add(14 * 24 * time.Hour)},
		{"one month is thirty days", 1, UnitMonths, ref.Add(30 * 24 * time.Hour)},
		{"three months", 3, UnitMonths, ref.Add(90 * 24 * time.Hour)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextDue(tc.value, tc.unit, ref)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %v, want %v", got, tc.want)
			assert.True(t, got.After(ref), "due date must be after the reference time")
		})
	}
}

func TestNextDueAlwaysAfterReference(t *testing.T) {
	ref := time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)
	for _, unit := range []Unit{UnitDays, UnitWeeks, UnitMonths} {
		for _, value := range []int{1, 2, 7, 30, 365} {
			got, err := NextDue(value, unit, ref)
			require.NoError(t, err)
			assert.True(t, got.After(ref), "%d %s produced %v, not after %v", value, unit, got, ref)
		}
	}
}

func TestNextDueRejectsBadInput(t *testing.T) {
	ref := time.Now().UTC()

	_, err := NextDue(0, UnitDays, ref)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NextDue(-3, UnitWeeks, ref)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NextDue(1, Unit("fortnights"), ref)
	assert.ErrorIs(t, err, ErrInvalidUnit)
}

func TestParseUnit(t *testing.T) {
	for input, want := range map[string]Unit{
		"days":    UnitDays,
		"Weeks":   UnitWeeks,
		"MONTHS":  UnitMonths,
		" days ":  UnitDays,
		"\tWEEKS": UnitWeeks,
	} {
		got, err := ParseUnit(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParseUnit("years")
	assert.ErrorIs(t, err, ErrInvalidUnit)

	_, err = ParseUnit("")
	assert.ErrorIs(t, err, ErrInvalidUnit)
}

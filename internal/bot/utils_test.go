package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDelta(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0d 0h 0m"},
		{90 * time.Minute, "0d 1h 30m"},
		{26*time.Hour + 5*time.Minute, "1d 2h 5m"},
		{10 * 24 * time.Hour, "10d 0h 0m"},
		{-time.Hour, "0d 0h 0m"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatDelta(tc.in), tc.in.String())
	}
}

func TestWhenDisplay(t *testing.T) {
	now := time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Next due date not set.", whenDisplay(nil, false, now))

	future := now.Add(48 * time.Hour)
	assert.Equal(t, "Next due: 2024-06-12 12:00 UTC (in 2d 0h 0m)", whenDisplay(&future, false, now))

	past := now.Add(-30 * time.Hour)
	assert.Equal(t, "Due: 2024-06-09 06:00 UTC (Overdue!)", whenDisplay(&past, false, now))
	assert.Equal(t, "Originally due: 2024-06-09 06:00 UTC (1d 6h 0m ago)", whenDisplay(&past, true, now))
}

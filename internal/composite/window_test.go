package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input   string
		want    Period
		wantErr bool
	}{
		{input: "monthly", want: PeriodMonthly},
		{input: "weekly", want: PeriodWeekly},
		{input: "", want: PeriodMonthly},
		{input: "fortnightly", wantErr: true},
		{input: "MONTHLY", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindows_MonthlyCalendarAligned(t *testing.T) {
	windows := Windows(PeriodMonthly, date(2024, 1, 15), date(2024, 3, 10))
	require.Len(t, windows, 3)

	// First window is clipped to the requested start.
	assert.Equal(t, date(2024, 1, 15), windows[0].Start)
	assert.Equal(t, date(2024, 2, 1), windows[0].End)

	assert.Equal(t, date(2024, 2, 1), windows[1].Start)
	assert.Equal(t, date(2024, 3, 1), windows[1].End)

	// Last window closes just past the inclusive end date.
	assert.Equal(t, date(2024, 3, 1), windows[2].Start)
	assert.Equal(t, date(2024, 3, 11), windows[2].End)
}

func TestWindows_SingleDay(t *testing.T) {
	day := date(2024, 5, 20)
	windows := Windows(PeriodMonthly, day, day)
	require.Len(t, windows, 1)

	assert.True(t, windows[0].Contains(day))
	assert.False(t, windows[0].Contains(day.AddDate(0, 0, 1)))
}

func TestWindows_Weekly(t *testing.T) {
	// 2024-07-01 is a Monday.
	windows := Windows(PeriodWeekly, date(2024, 7, 3), date(2024, 7, 16))
	require.Len(t, windows, 3)

	assert.Equal(t, date(2024, 7, 3), windows[0].Start)
	assert.Equal(t, date(2024, 7, 8), windows[0].End)

	assert.Equal(t, date(2024, 7, 8), windows[1].Start)
	assert.Equal(t, date(2024, 7, 15), windows[1].End)

	assert.Equal(t, date(2024, 7, 15), windows[2].Start)
	assert.Equal(t, date(2024, 7, 17), windows[2].End)
}

func TestWindows_EndBeforeStart(t *testing.T) {
	assert.Nil(t, Windows(PeriodMonthly, date(2024, 2, 1), date(2024, 1, 1)))
}

func TestWindow_Contains(t *testing.T) {
	w := Window{Start: date(2024, 1, 1), End: date(2024, 2, 1)}

	assert.True(t, w.Contains(date(2024, 1, 1)))
	assert.True(t, w.Contains(date(2024, 1, 31)))
	assert.False(t, w.Contains(date(2024, 2, 1)))
	assert.False(t, w.Contains(date(2023, 12, 31)))
}

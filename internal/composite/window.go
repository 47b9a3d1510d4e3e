package composite

import (
	"fmt"
	"time"
)

// Period selects the temporal compositing granularity.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodWeekly  Period = "weekly"
)

// ParsePeriod validates a configured period string, defaulting to monthly.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodMonthly, PeriodWeekly:
		return Period(s), nil
	case "":
		return PeriodMonthly, nil
	default:
		return "", fmt.Errorf("unknown composite period %q", s)
	}
}

// Window is one compositing period, inclusive of Start and exclusive of End.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Windows splits [start, end] into calendar-aligned periods. The first and
// last windows are clipped so a mid-month range does not pull in scenes from
// outside the requested dates.
func Windows(p Period, start, end time.Time) []Window {
	if end.Before(start) {
		return nil
	}

	var windows []Window
	cursor := start
	for cursor.Before(end) || cursor.Equal(end) {
		var next time.Time
		switch p {
		case PeriodWeekly:
			next = startOfWeek(cursor).AddDate(0, 0, 7)
		default:
			next = startOfMonth(cursor).AddDate(0, 1, 0)
		}

		windowEnd := next
		if windowEnd.After(end) {
			// End date is inclusive, so the final window closes just past it.
			windowEnd = end.AddDate(0, 0, 1)
		}
		windows = append(windows, Window{Start: cursor, End: windowEnd})
		cursor = next
	}
	return windows
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	weekday := (int(day.Weekday()) + 6) % 7 // Monday-based
	return day.AddDate(0, 0, -weekday)
}

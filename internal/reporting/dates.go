package reporting

import (
	"fmt"
	"inboxdigest/internal/core"
	"time"
)

const dateLayout = "2006-01-02"

// DailyRange returns the single-day period containing target.
func DailyRange(target time.Time) core.ReportPeriod {
	day := core.Day(target)
	return core.ReportPeriod{Type: core.ReportDaily, Start: day, End: day}
}

// WeeklyRange returns the ISO week (Monday through Sunday) containing target.
func WeeklyRange(target time.Time) core.ReportPeriod {
	day := core.Day(target)
	offset := (int(day.Weekday()) + 6) % 7
	monday := day.AddDate(0, 0, -offset)
	return core.ReportPeriod{Type: core.ReportWeekly, Start: monday, End: monday.AddDate(0, 0, 6)}
}

// MonthlyRange returns the calendar month containing target.
func MonthlyRange(target time.Time) core.ReportPeriod {
	day := core.Day(target)
	first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return core.ReportPeriod{Type: core.ReportMonthly, Start: first, End: last}
}

// PeriodFor returns the period of the given type containing target.
func PeriodFor(reportType core.ReportType, target time.Time) (core.ReportPeriod, error) {
	switch reportType {
	case core.ReportDaily:
		return DailyRange(target), nil
	case core.ReportWeekly:
		return WeeklyRange(target), nil
	case core.ReportMonthly:
		return MonthlyRange(target), nil
	}
	return core.ReportPeriod{}, fmt.Errorf("unknown report type %q", reportType)
}

// FormatDateRange renders "2025-01-13 ~ 2025-01-19", or a single date when
// start and end fall on the same day.
func FormatDateRange(start, end time.Time) string {
	if core.Day(start).Equal(core.Day(end)) {
		return start.Format(dateLayout)
	}
	return start.Format(dateLayout) + " ~ " + end.Format(dateLayout)
}

package ledger

import (
	"fmt"
	"time"

	"github.com/tinoosan/kiosk-ledger/internal/errs"
)

// DayLayout is the wire and storage format of calendar days.
const DayLayout = "2006-01-02"

// Day returns the calendar day of t as observed in loc, as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a day value.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", errs.ErrInvalid, s)
	}
	return t, nil
}

// FormatDay renders a day value as YYYY-MM-DD.
func FormatDay(day time.Time) string { return day.Format(DayLayout) }

// DayBounds returns the first and last second of day in loc.
func DayBounds(day time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	end = time.Date(y, m, d, 23, 59, 59, 0, loc)
	return start, end
}

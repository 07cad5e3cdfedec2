package workitem

import "time"

// Recurrence is the spawn rule of a definition.
type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// Valid reports whether r is a known rule.
func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// advance moves t forward by one period of r.
func (r Recurrence) advance(t time.Time) time.Time {
	switch r {
	case RecurrenceWeekly:
		return t.AddDate(0, 0, 7)
	case RecurrenceMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// Eligible reports whether a definition last spawned at last (nil when
// never) must spawn a new instance at asOf. Daily rules compare calendar
// days in loc; weekly and monthly rules require strictly more than one
// period to have elapsed, so passes evaluated at the same time of day
// spawn a weekly rule every eighth day.
func (r Recurrence) Eligible(last *time.Time, asOf time.Time, loc *time.Location) bool {
	if last == nil {
		return true
	}
	switch r {
	case RecurrenceDaily:
		return !Day(*last, loc).Equal(Day(asOf, loc))
	case RecurrenceWeekly, RecurrenceMonthly:
		return asOf.After(r.advance(*last))
	}
	return false
}

// DueDate returns the last calendar day of the period starting on day:
// the same day for daily rules, six days later for weekly rules.
func (r Recurrence) DueDate(day time.Time) time.Time {
	return r.advance(day).AddDate(0, 0, -1)
}

// Day returns the calendar date of t in loc as midnight UTC, the
// representation used for due and allocated dates.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDay returns the calendar day after day.
func NextDay(day time.Time) time.Time { return day.AddDate(0, 0, 1) }

// PrevDay returns the calendar day before day.
func PrevDay(day time.Time) time.Time { return day.AddDate(0, 0, -1) }

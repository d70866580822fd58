// Package schedule holds the pure date arithmetic of the recurrence engine:
// next due dates, reminder lead times and fire instants. No I/O.
package schedule

import (
	"time"

	"inspectd/internal/apperr"
	"inspectd/internal/store"
)

// NextDueDate returns the due date that follows due for the given
// inspection type. Month-based intervals clamp to the last valid day of
// the target month (Jan 31 + 1 month = Feb 28/29), never spilling into
// the following month. One-time inspections do not recur: the input comes
// back unchanged, signalling no further occurrence. Dates are normalized
// to midnight; due dates are date-only.
func NextDueDate(typ store.InspectionType, due time.Time) (time.Time, error) {
	due = Midnight(due)
	switch typ {
	case store.TypeWeekly:
		return due.AddDate(0, 0, 7), nil
	case store.TypeMonthly:
		return addMonthsClamped(due, 1), nil
	case store.TypeQuarterly:
		return addMonthsClamped(due, 3), nil
	case store.TypeSemiAnnual:
		return addMonthsClamped(due, 6), nil
	case store.TypeAnnual:
		return addMonthsClamped(due, 12), nil
	case store.TypeOneTime:
		return due, nil
	}
	return time.Time{}, apperr.Validationf("unknown inspection type %q", typ)
}

// addMonthsClamped adds months keeping the day-of-month, clamping to the
// target month's last day. time.AddDate normalizes overflow instead
// (Jan 31 + 1 month = Mar 2/3), which is not what a recurrence wants.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// LeadDays maps a reminder type to how many days before the due date the
// advance notification fires. Unknown types get no lead.
func LeadDays(typ store.ReminderType) int {
	switch typ {
	case store.ReminderDays2Before:
		return 2
	case store.ReminderDays15Before:
		return 15
	case store.ReminderDays30Before:
		return 30
	default:
		return 0
	}
}

// DefaultReminderType picks the advance-notice window that matches the
// inspection's cadence: short cycles get short notice.
func DefaultReminderType(typ store.InspectionType) store.ReminderType {
	switch typ {
	case store.TypeWeekly:
		return store.ReminderDays2Before
	case store.TypeMonthly, store.TypeQuarterly:
		return store.ReminderDays15Before
	case store.TypeSemiAnnual, store.TypeAnnual:
		return store.ReminderDays30Before
	default:
		return store.ReminderDueDate
	}
}

// FireTime returns the instant a reminder scheduled leadDays before due
// should fire: due minus leadDays, at sendHour o'clock in loc.
func FireTime(due time.Time, leadDays, sendHour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	d := Midnight(due).AddDate(0, 0, -leadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), sendHour, 0, 0, 0, loc)
}

// Midnight truncates t to its date.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

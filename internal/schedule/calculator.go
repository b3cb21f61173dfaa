// Package schedule computes the due dates of recurring definitions.
//
// Every function here is pure: the caller supplies the window and the clock
// is never read.
package schedule

import (
	"iter"
	"slices"

	"registro/internal/core"
)

// farFuture bounds open-ended searches such as NextDueDate.
var farFuture = core.NewDate(9999, 12, 31)

// series is the candidate sequence of one schedule. nth must be strictly
// increasing in k.
type series interface {
	// nth returns candidate k, counted from the schedule anchor.
	nth(k int) core.Date
	// seek returns an index at or before the first candidate not before
	// lower. Every candidate below the index is before lower.
	seek(lower core.Date) int
	// matches is the per-date filter applied to each candidate.
	matches(d core.Date) bool
}

// dayStep is a fixed step of days from an anchor.
type dayStep struct {
	anchor       core.Date
	days         int
	weekdaysOnly bool
}

func (s dayStep) nth(k int) core.Date { return s.anchor.AddDays(k * s.days) }

func (s dayStep) seek(lower core.Date) int {
	diff := s.anchor.DaysUntil(lower)
	if diff <= 0 {
		return 0
	}
	return diff / s.days
}

func (s dayStep) matches(d core.Date) bool {
	return !s.weekdaysOnly || !d.IsWeekend()
}

// monthStep lands on the same day of month every `months` months. The day
// is clamped to the length of each target month and always recomputed from
// the anchor month, so a short month never shifts later candidates.
type monthStep struct {
	year, month int
	day         int
	months      int
}

func (s monthStep) nth(k int) core.Date {
	return core.MonthDay(s.year, s.month+k*s.months, s.day)
}

func (s monthStep) seek(lower core.Date) int {
	diff := (lower.Year()-s.year)*12 + lower.Month() - s.month
	if diff <= 0 {
		return 0
	}
	return diff / s.months
}

func (s monthStep) matches(d core.Date) bool {
	want := s.day
	if last := core.DaysIn(d.Year(), d.Month()); want > last {
		want = last
	}
	return d.Day() == want
}

// seriesFor maps a definition to its candidate series. It reports false for
// a definition without a usable schedule.
func seriesFor(def core.RecurringDefinition) (series, bool) {
	start := def.StartDate
	switch s := def.Schedule.(type) {
	case core.DailySchedule:
		return dayStep{anchor: start, days: 1, weekdaysOnly: s.WeekdaysOnly}, true
	case core.WeeklySchedule:
		anchor := start
		if s.DayOfWeek != nil {
			anchor = start.AddDays((int(*s.DayOfWeek) - int(start.Weekday()) + 7) % 7)
		}
		return dayStep{anchor: anchor, days: 7}, true
	case core.MonthlySchedule:
		dom := s.DayOfMonth
		if dom == 0 {
			dom = start.Day()
		}
		y, m := start.Year(), start.Month()
		if core.MonthDay(y, m, dom).Before(start) {
			m++
		}
		return monthStep{year: y, month: m, day: dom, months: 1}, true
	case core.YearlySchedule:
		return monthStep{year: start.Year(), month: start.Month(), day: start.Day(), months: 12}, true
	case core.CustomSchedule:
		if s.Interval < 1 {
			return nil, false
		}
		switch s.Unit {
		case core.UnitDays:
			return dayStep{anchor: start, days: s.Interval}, true
		case core.UnitWeeks:
			return dayStep{anchor: start, days: 7 * s.Interval}, true
		case core.UnitMonths:
			return monthStep{year: start.Year(), month: start.Month(), day: start.Day(), months: s.Interval}, true
		}
	}
	return nil, false
}

// bounds returns the effective inclusive window for def, or false when it
// is empty.
func bounds(def core.RecurringDefinition, from, to core.Date) (core.Date, core.Date, bool) {
	if !def.Enabled || def.StartDate.IsZero() || from.After(to) {
		return core.Date{}, core.Date{}, false
	}
	lower := core.MaxDate(from, def.StartDate)
	if def.LastGeneratedDate != nil {
		lower = core.MaxDate(lower, def.LastGeneratedDate.AddDays(1))
	}
	upper := to
	if def.EndDate != nil {
		upper = core.MinDate(upper, *def.EndDate)
	}
	if lower.After(upper) {
		return core.Date{}, core.Date{}, false
	}
	return lower, upper, true
}

// DueDatesInRange yields, in increasing order, the dates in [from, to] on
// which def is due and that have not been generated yet. Disabled
// definitions yield nothing. The sequence may be ranged over any number of
// times.
func DueDatesInRange(def core.RecurringDefinition, from, to core.Date) iter.Seq[core.Date] {
	return func(yield func(core.Date) bool) {
		lower, upper, ok := bounds(def, from, to)
		if !ok {
			return
		}
		s, ok := seriesFor(def)
		if !ok {
			return
		}
		for k := s.seek(lower); ; k++ {
			d := s.nth(k)
			if d.After(upper) {
				return
			}
			if d.Before(lower) || !s.matches(d) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// DueDates is DueDatesInRange collected into a slice.
func DueDates(def core.RecurringDefinition, from, to core.Date) []core.Date {
	return slices.Collect(DueDatesInRange(def, from, to))
}

// IsDueOn reports whether def has an ungenerated due date on day.
func IsDueOn(def core.RecurringDefinition, day core.Date) bool {
	for range DueDatesInRange(def, day, day) {
		return true
	}
	return false
}

// NextDueDate returns the first due date strictly after the given date.
func NextDueDate(def core.RecurringDefinition, after core.Date) (core.Date, bool) {
	for d := range DueDatesInRange(def, after.AddDays(1), farFuture) {
		return d, true
	}
	return core.Date{}, false
}

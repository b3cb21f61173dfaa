package schedule

import (
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"

	"registro/internal/core"
)

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// ruleOptions expresses def as RFC 5545 recurrence options without DTSTART.
// Days of month past 28 are written as the last existing day in 28..day,
// which matches the clamping of the calculator.
func ruleOptions(def core.RecurringDefinition) (rrule.ROption, error) {
	opt := rrule.ROption{Interval: 1}
	start := def.StartDate

	switch s := def.Schedule.(type) {
	case core.DailySchedule:
		opt.Freq = rrule.DAILY
		if s.WeekdaysOnly {
			opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
		}
	case core.WeeklySchedule:
		opt.Freq = rrule.WEEKLY
		wd := start.Weekday()
		if s.DayOfWeek != nil {
			wd = *s.DayOfWeek
		}
		opt.Byweekday = []rrule.Weekday{rruleWeekdays[wd]}
	case core.MonthlySchedule:
		opt.Freq = rrule.MONTHLY
		dom := s.DayOfMonth
		if dom == 0 {
			dom = start.Day()
		}
		setMonthDay(&opt, dom)
	case core.YearlySchedule:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{start.Month()}
		setMonthDay(&opt, start.Day())
	case core.CustomSchedule:
		opt.Interval = s.Interval
		switch s.Unit {
		case core.UnitDays:
			opt.Freq = rrule.DAILY
		case core.UnitWeeks:
			opt.Freq = rrule.WEEKLY
			opt.Byweekday = []rrule.Weekday{rruleWeekdays[start.Weekday()]}
		case core.UnitMonths:
			opt.Freq = rrule.MONTHLY
			setMonthDay(&opt, start.Day())
		default:
			return rrule.ROption{}, fmt.Errorf("%w: unknown unit %q", core.ErrInvalidScheduleConfig, s.Unit)
		}
	default:
		return rrule.ROption{}, core.ErrMissingSchedule
	}

	if def.EndDate != nil {
		opt.Until = def.EndDate.Time
	}
	return opt, nil
}

func setMonthDay(opt *rrule.ROption, day int) {
	if day <= 28 {
		opt.Bymonthday = []int{day}
		return
	}
	for d := 28; d <= day; d++ {
		opt.Bymonthday = append(opt.Bymonthday, d)
	}
	opt.Bysetpos = []int{-1}
}

// RRule renders def as an RRULE value, e.g. "FREQ=MONTHLY;BYMONTHDAY=15".
func RRule(def core.RecurringDefinition) (string, error) {
	opt, err := ruleOptions(def)
	if err != nil {
		return "", err
	}
	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	str := opt.String()
	if i := strings.LastIndex(str, "RRULE:"); i >= 0 {
		str = str[i+len("RRULE:"):]
	}
	return str, nil
}


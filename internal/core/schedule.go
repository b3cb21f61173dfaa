package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Custom  Frequency = "custom"
)

const (
	UnitDays   IntervalUnit = "days"
	UnitWeeks  IntervalUnit = "weeks"
	UnitMonths IntervalUnit = "months"
)

type (
	// Frequency names the base unit of a recurring schedule.
	Frequency string

	// IntervalUnit is the step unit of a custom schedule.
	IntervalUnit string
)

// ErrInvalidScheduleConfig is returned when schedule options do not fit the
// frequency they are attached to.
var ErrInvalidScheduleConfig = errors.New("invalid schedule config")

// Schedule is the frequency-specific part of a recurring definition. The
// set of implementations is closed: DailySchedule, WeeklySchedule,
// MonthlySchedule, YearlySchedule and CustomSchedule.
type Schedule interface {
	Frequency() Frequency
	validate() error
}

// DailySchedule is due every day, or every Monday to Friday.
type DailySchedule struct {
	WeekdaysOnly bool
}

// WeeklySchedule is due once a week. A nil DayOfWeek means the weekday of
// the start date.
type WeeklySchedule struct {
	DayOfWeek *time.Weekday
}

// MonthlySchedule is due once a month. DayOfMonth 0 means the day of the
// start date. Days past the end of a short month clamp to its last day.
type MonthlySchedule struct {
	DayOfMonth int
}

// YearlySchedule is due every year on the month and day of the start date.
type YearlySchedule struct{}

// CustomSchedule is due every Interval Units.
type CustomSchedule struct {
	Interval int
	Unit     IntervalUnit
}

func (DailySchedule) Frequency() Frequency   { return Daily }
func (WeeklySchedule) Frequency() Frequency  { return Weekly }
func (MonthlySchedule) Frequency() Frequency { return Monthly }
func (YearlySchedule) Frequency() Frequency  { return Yearly }
func (CustomSchedule) Frequency() Frequency  { return Custom }

func (DailySchedule) validate() error { return nil }

func (s WeeklySchedule) validate() error {
	if s.DayOfWeek != nil && (*s.DayOfWeek < time.Sunday || *s.DayOfWeek > time.Saturday) {
		return fmt.Errorf("%w: dayOfWeek %d outside 0-6", ErrInvalidScheduleConfig, *s.DayOfWeek)
	}
	return nil
}

func (s MonthlySchedule) validate() error {
	if s.DayOfMonth < 0 || s.DayOfMonth > 31 {
		return fmt.Errorf("%w: dayOfMonth %d outside 1-31", ErrInvalidScheduleConfig, s.DayOfMonth)
	}
	return nil
}

func (YearlySchedule) validate() error { return nil }

func (s CustomSchedule) validate() error {
	if s.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidScheduleConfig, s.Interval)
	}
	switch s.Unit {
	case UnitDays, UnitWeeks, UnitMonths:
		return nil
	default:
		return fmt.Errorf("%w: unknown unit %q", ErrInvalidScheduleConfig, s.Unit)
	}
}

// Weekday is a convenience for building a WeeklySchedule.
func Weekday(d time.Weekday) *time.Weekday {
	return &d
}

// ValidateSchedule checks a schedule built in code rather than parsed.
func ValidateSchedule(s Schedule) error {
	if s == nil {
		return fmt.Errorf("%w: missing schedule", ErrInvalidScheduleConfig)
	}
	return s.validate()
}

// scheduleOptions is the stored JSON shape of frequency options. Only the
// fields relevant to the frequency are set.
type scheduleOptions struct {
	DayOfMonth   *int          `json:"dayOfMonth,omitempty"`
	DayOfWeek    *int          `json:"dayOfWeek,omitempty"`
	WeekdaysOnly *bool         `json:"weekdaysOnly,omitempty"`
	Interval     *int          `json:"interval,omitempty"`
	Unit         *IntervalUnit `json:"unit,omitempty"`
}

// ParseSchedule builds the schedule variant for freq from its JSON options.
// Empty or null options are allowed; options belonging to another frequency
// are rejected.
func ParseSchedule(freq Frequency, raw []byte) (Schedule, error) {
	var opts scheduleOptions
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidScheduleConfig, err)
		}
	}

	var s Schedule
	switch freq {
	case Daily:
		if opts.DayOfMonth != nil || opts.DayOfWeek != nil || opts.Interval != nil || opts.Unit != nil {
			return nil, fmt.Errorf("%w: daily accepts only weekdaysOnly", ErrInvalidScheduleConfig)
		}
		s = DailySchedule{WeekdaysOnly: opts.WeekdaysOnly != nil && *opts.WeekdaysOnly}
	case Weekly:
		if opts.DayOfMonth != nil || opts.WeekdaysOnly != nil || opts.Interval != nil || opts.Unit != nil {
			return nil, fmt.Errorf("%w: weekly accepts only dayOfWeek", ErrInvalidScheduleConfig)
		}
		ws := WeeklySchedule{}
		if opts.DayOfWeek != nil {
			ws.DayOfWeek = Weekday(time.Weekday(*opts.DayOfWeek))
		}
		s = ws
	case Monthly:
		if opts.DayOfWeek != nil || opts.WeekdaysOnly != nil || opts.Interval != nil || opts.Unit != nil {
			return nil, fmt.Errorf("%w: monthly accepts only dayOfMonth", ErrInvalidScheduleConfig)
		}
		ms := MonthlySchedule{}
		if opts.DayOfMonth != nil {
			if *opts.DayOfMonth == 0 {
				return nil, fmt.Errorf("%w: dayOfMonth 0 outside 1-31", ErrInvalidScheduleConfig)
			}
			ms.DayOfMonth = *opts.DayOfMonth
		}
		s = ms
	case Yearly:
		if opts.DayOfMonth != nil || opts.DayOfWeek != nil || opts.WeekdaysOnly != nil || opts.Interval != nil || opts.Unit != nil {
			return nil, fmt.Errorf("%w: yearly takes no options", ErrInvalidScheduleConfig)
		}
		s = YearlySchedule{}
	case Custom:
		if opts.Interval == nil || opts.Unit == nil {
			return nil, fmt.Errorf("%w: custom requires interval and unit", ErrInvalidScheduleConfig)
		}
		s = CustomSchedule{Interval: *opts.Interval, Unit: *opts.Unit}
	default:
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrInvalidScheduleConfig, freq)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MarshalScheduleOptions returns the JSON options for s, the inverse of
// ParseSchedule.
func MarshalScheduleOptions(s Schedule) ([]byte, error) {
	var opts scheduleOptions
	switch v := s.(type) {
	case DailySchedule:
		if v.WeekdaysOnly {
			opts.WeekdaysOnly = &v.WeekdaysOnly
		}
	case WeeklySchedule:
		if v.DayOfWeek != nil {
			d := int(*v.DayOfWeek)
			opts.DayOfWeek = &d
		}
	case MonthlySchedule:
		if v.DayOfMonth != 0 {
			opts.DayOfMonth = &v.DayOfMonth
		}
	case YearlySchedule:
	case CustomSchedule:
		opts.Interval = &v.Interval
		opts.Unit = &v.Unit
	default:
		return nil, fmt.Errorf("%w: unsupported schedule %T", ErrInvalidScheduleConfig, s)
	}
	return json.Marshal(opts)
}

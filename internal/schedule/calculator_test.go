package schedule

import (
	"slices"
	"testing"
	"time"

	"registro/internal/core"
)

func d(s string) core.Date { return core.MustParseDate(s) }

func datePtr(s string) *core.Date {
	v := d(s)
	return &v
}

func def(s core.Schedule, start string) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:        "r1",
		UserID:    "u1",
		Name:      "test",
		Kind:      core.Expense,
		Amount:    core.NewAmountFromCents(1000),
		Category:  "Misc",
		Schedule:  s,
		StartDate: d(start),
		Enabled:   true,
	}
}

func dateStrings(ds []core.Date) []string {
	out := make([]string, len(ds))
	for i, v := range ds {
		out[i] = v.String()
	}
	return out
}

func TestDueDatesInRange(t *testing.T) {
	cases := []struct {
		name     string
		def      core.RecurringDefinition
		from, to string
		want     []string
	}{
		{
			name: "weekly mondays in january",
			def:  def(core.WeeklySchedule{DayOfWeek: core.Weekday(time.Monday)}, "2024-01-01"),
			from: "2024-01-01", to: "2024-01-31",
			want: []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"},
		},
		{
			name: "daily weekdays only starting on a saturday",
			def:  def(core.DailySchedule{WeekdaysOnly: true}, "2024-06-01"),
			from: "2024-06-01", to: "2024-06-07",
			want: []string{"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06", "2024-06-07"},
		},
		{
			name: "monthly 31st clamps in february",
			def:  def(core.MonthlySchedule{DayOfMonth: 31}, "2024-01-31"),
			from: "2024-02-01", to: "2024-02-29",
			want: []string{"2024-02-29"},
		},
		{
			name: "monthly 31st does not drift after february",
			def:  def(core.MonthlySchedule{DayOfMonth: 31}, "2024-01-31"),
			from: "2024-01-01", to: "2024-05-31",
			want: []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30", "2024-05-31"},
		},
		{
			name: "monthly phase aligned on the 15th",
			def:  def(core.MonthlySchedule{DayOfMonth: 15}, "2024-01-15"),
			from: "2024-03-01", to: "2024-03-31",
			want: []string{"2024-03-15"},
		},
		{
			name: "monthly day before start moves to next month",
			def:  def(core.MonthlySchedule{DayOfMonth: 10}, "2024-01-20"),
			from: "2024-01-01", to: "2024-03-31",
			want: []string{"2024-02-10", "2024-03-10"},
		},
		{
			name: "monthly without day uses start day",
			def:  def(core.MonthlySchedule{}, "2024-01-05"),
			from: "2024-01-01", to: "2024-03-31",
			want: []string{"2024-01-05", "2024-02-05", "2024-03-05"},
		},
		{
			name: "weekly without day uses start weekday",
			def:  def(core.WeeklySchedule{}, "2024-01-03"),
			from: "2024-01-01", to: "2024-01-20",
			want: []string{"2024-01-03", "2024-01-10", "2024-01-17"},
		},
		{
			name: "weekly day after start weekday",
			def:  def(core.WeeklySchedule{DayOfWeek: core.Weekday(time.Friday)}, "2024-01-01"),
			from: "2024-01-01", to: "2024-01-14",
			want: []string{"2024-01-05", "2024-01-12"},
		},
		{
			name: "yearly leap day clamps in common years",
			def:  def(core.YearlySchedule{}, "2024-02-29"),
			from: "2024-01-01", to: "2028-12-31",
			want: []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"},
		},
		{
			name: "custom every ten days",
			def:  def(core.CustomSchedule{Interval: 10, Unit: core.UnitDays}, "2024-01-01"),
			from: "2024-01-05", to: "2024-02-01",
			want: []string{"2024-01-11", "2024-01-21", "2024-01-31"},
		},
		{
			name: "custom every two weeks",
			def:  def(core.CustomSchedule{Interval: 2, Unit: core.UnitWeeks}, "2024-01-01"),
			from: "2024-01-01", to: "2024-02-15",
			want: []string{"2024-01-01", "2024-01-15", "2024-01-29", "2024-02-12"},
		},
		{
			name: "custom every three months from month end",
			def:  def(core.CustomSchedule{Interval: 3, Unit: core.UnitMonths}, "2023-11-30"),
			from: "2023-01-01", to: "2024-12-31",
			want: []string{"2023-11-30", "2024-02-29", "2024-05-30", "2024-08-30", "2024-11-30"},
		},
		{
			name: "window entirely before start",
			def:  def(core.DailySchedule{}, "2024-06-01"),
			from: "2024-05-01", to: "2024-05-31",
			want: nil,
		},
		{
			name: "inverted window",
			def:  def(core.DailySchedule{}, "2024-01-01"),
			from: "2024-02-01", to: "2024-01-01",
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := dateStrings(DueDates(tc.def, d(tc.from), d(tc.to)))
			if !slices.Equal(got, tc.want) && !(len(got) == 0 && len(tc.want) == 0) {
				t.Errorf("DueDates() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDueDatesRespectsEndDate(t *testing.T) {
	r := def(core.DailySchedule{}, "2024-01-01")
	r.EndDate = datePtr("2024-01-03")
	got := dateStrings(DueDates(r, d("2024-01-01"), d("2024-01-10")))
	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	if !slices.Equal(got, want) {
		t.Errorf("DueDates() = %v, want %v", got, want)
	}
}

func TestDueDatesLastGeneratedFloor(t *testing.T) {
	r := def(core.MonthlySchedule{DayOfMonth: 15}, "2024-01-15")
	r.LastGeneratedDate = datePtr("2024-02-15")
	got := dateStrings(DueDates(r, d("2024-01-01"), d("2024-04-30")))
	want := []string{"2024-03-15", "2024-04-15"}
	if !slices.Equal(got, want) {
		t.Errorf("DueDates() = %v, want %v", got, want)
	}

	// an off-phase marker still excludes everything up to and including it
	r.LastGeneratedDate = datePtr("2024-03-20")
	got = dateStrings(DueDates(r, d("2024-01-01"), d("2024-04-30")))
	want = []string{"2024-04-15"}
	if !slices.Equal(got, want) {
		t.Errorf("DueDates() = %v, want %v", got, want)
	}
}

func TestDueDatesDisabled(t *testing.T) {
	r := def(core.DailySchedule{}, "2024-01-01")
	r.Enabled = false
	if got := DueDates(r, d("2024-01-01"), d("2024-12-31")); len(got) != 0 {
		t.Errorf("DueDates() on disabled definition = %v, want none", got)
	}
}

func TestDueDatesInRangeStopsEarly(t *testing.T) {
	r := def(core.DailySchedule{}, "2024-01-01")
	var got []core.Date
	for v := range DueDatesInRange(r, d("2024-01-01"), farFuture) {
		got = append(got, v)
		if len(got) == 3 {
			break
		}
	}
	if len(got) != 3 || got[2].String() != "2024-01-03" {
		t.Errorf("early break got %v", dateStrings(got))
	}
}

// propertyDefinitions covers every schedule variant with awkward start
// dates, end dates and markers.
func propertyDefinitions() []core.RecurringDefinition {
	schedules := []core.Schedule{
		core.DailySchedule{},
		core.DailySchedule{WeekdaysOnly: true},
		core.WeeklySchedule{},
		core.WeeklySchedule{DayOfWeek: core.Weekday(time.Sunday)},
		core.WeeklySchedule{DayOfWeek: core.Weekday(time.Wednesday)},
		core.MonthlySchedule{},
		core.MonthlySchedule{DayOfMonth: 1},
		core.MonthlySchedule{DayOfMonth: 29},
		core.MonthlySchedule{DayOfMonth: 31},
		core.YearlySchedule{},
		core.CustomSchedule{Interval: 3, Unit: core.UnitDays},
		core.CustomSchedule{Interval: 2, Unit: core.UnitWeeks},
		core.CustomSchedule{Interval: 5, Unit: core.UnitMonths},
	}
	starts := []string{"2023-01-31", "2024-02-29", "2024-06-01", "2024-12-30"}

	var out []core.RecurringDefinition
	for _, s := range schedules {
		for _, start := range starts {
			plain := def(s, start)
			out = append(out, plain)

			ended := plain
			ended.EndDate = datePtr("2025-03-10")
			out = append(out, ended)

			marked := plain
			marked.LastGeneratedDate = datePtr("2024-08-17")
			out = append(out, marked)
		}
	}
	return out
}

func TestDueDatesProperties(t *testing.T) {
	windows := [][2]string{
		{"2022-12-01", "2023-03-01"},
		{"2024-01-01", "2024-12-31"},
		{"2024-08-17", "2024-08-17"},
		{"2025-02-01", "2026-06-30"},
	}
	for _, r := range propertyDefinitions() {
		for _, w := range windows {
			from, to := d(w[0]), d(w[1])
			got := DueDates(r, from, to)

			for i, v := range got {
				if v.Before(r.StartDate) || v.Before(from) || v.After(to) {
					t.Fatalf("%s start=%s window=%v: %s outside bounds", r.Frequency(), r.StartDate, w, v)
				}
				if r.EndDate != nil && v.After(*r.EndDate) {
					t.Fatalf("%s start=%s: %s after end %s", r.Frequency(), r.StartDate, v, r.EndDate)
				}
				if r.LastGeneratedDate != nil && !v.After(*r.LastGeneratedDate) {
					t.Fatalf("%s start=%s: %s not after last generated %s", r.Frequency(), r.StartDate, v, r.LastGeneratedDate)
				}
				if i > 0 && !got[i-1].Before(v) {
					t.Fatalf("%s start=%s: not strictly increasing at %d: %v", r.Frequency(), r.StartDate, i, dateStrings(got))
				}
			}

			again := DueDates(r, from, to)
			if !slices.Equal(dateStrings(got), dateStrings(again)) {
				t.Fatalf("%s start=%s: recomputation differs: %v vs %v", r.Frequency(), r.StartDate, dateStrings(got), dateStrings(again))
			}
		}
	}
}

func TestIsDueOn(t *testing.T) {
	r := def(core.WeeklySchedule{DayOfWeek: core.Weekday(time.Monday)}, "2024-01-01")
	if !IsDueOn(r, d("2024-01-08")) {
		t.Errorf("IsDueOn(Monday) = false, want true")
	}
	if IsDueOn(r, d("2024-01-09")) {
		t.Errorf("IsDueOn(Tuesday) = true, want false")
	}
	r.LastGeneratedDate = datePtr("2024-01-08")
	if IsDueOn(r, d("2024-01-08")) {
		t.Errorf("IsDueOn(already generated) = true, want false")
	}
}

func TestNextDueDate(t *testing.T) {
	r := def(core.MonthlySchedule{DayOfMonth: 31}, "2024-01-31")

	got, ok := NextDueDate(r, d("2024-01-31"))
	if !ok || got.String() != "2024-02-29" {
		t.Errorf("NextDueDate() = %s, %v; want 2024-02-29, true", got, ok)
	}

	r.EndDate = datePtr("2024-02-28")
	if got, ok := NextDueDate(r, d("2024-01-31")); ok {
		t.Errorf("NextDueDate() past end = %s, want none", got)
	}
}

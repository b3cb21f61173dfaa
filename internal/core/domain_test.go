package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func validDefinition() RecurringDefinition {
	return RecurringDefinition{
		ID:        "r1",
		UserID:    "u1",
		Name:      "Rent",
		Kind:      Expense,
		Amount:    NewAmountFromCents(90000),
		Category:  "Housing",
		Schedule:  MonthlySchedule{DayOfMonth: 1},
		StartDate: NewDate(2024, 1, 1),
		Enabled:   true,
	}
}

func TestRecurringDefinitionValidate(t *testing.T) {
	if err := validDefinition().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	before := NewDate(2023, 12, 31)
	same := NewDate(2024, 1, 1)

	cases := []struct {
		name   string
		mutate func(*RecurringDefinition)
		want   error
	}{
		{"empty user", func(r *RecurringDefinition) { r.UserID = " " }, ErrEmptyUser},
		{"empty name", func(r *RecurringDefinition) { r.Name = "" }, ErrEmptyName},
		{"bad kind", func(r *RecurringDefinition) { r.Kind = "transfer" }, ErrInvalidKind},
		{"zero amount", func(r *RecurringDefinition) { r.Amount = Amount{} }, ErrInvalidAmount},
		{"empty category", func(r *RecurringDefinition) { r.Category = "" }, ErrEmptyCategory},
		{"no schedule", func(r *RecurringDefinition) { r.Schedule = nil }, ErrInvalidScheduleConfig},
		{"bad custom", func(r *RecurringDefinition) { r.Schedule = CustomSchedule{Interval: 0, Unit: UnitDays} }, ErrInvalidScheduleConfig},
		{"end before start", func(r *RecurringDefinition) { r.EndDate = &before }, ErrEndBeforeStart},
		{"end equals start", func(r *RecurringDefinition) { r.EndDate = &same }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validDefinition()
			tc.mutate(&r)
			err := r.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRecurringPatchApply(t *testing.T) {
	end := NewDate(2024, 6, 30)
	r := validDefinition()
	r.EndDate = &end

	name := "New rent"
	disabled := false
	got := RecurringPatch{Name: &name, Enabled: &disabled, ClearEndDate: true}.Apply(r)

	if got.Name != name {
		t.Errorf("Name = %q, want %q", got.Name, name)
	}
	if got.Enabled {
		t.Errorf("Enabled = true, want false")
	}
	if got.EndDate != nil {
		t.Errorf("EndDate = %v, want nil", got.EndDate)
	}
	if got.Category != r.Category {
		t.Errorf("Category = %q, want unchanged %q", got.Category, r.Category)
	}
	if r.Name != "Rent" {
		t.Errorf("original definition was modified")
	}
	if !(RecurringPatch{}).IsEmpty() {
		t.Errorf("zero patch should be empty")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		UserID:   "u1",
		Date:     NewDate(2025, 1, 1),
		Kind:     Income,
		Amount:   NewAmountFromCents(100),
		Category: "Salary",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{UserID: "", Date: NewDate(2025, 1, 1), Kind: Income, Amount: NewAmountFromCents(1), Category: "c"},
		{UserID: "u", Date: Date{}, Kind: Income, Amount: NewAmountFromCents(1), Category: "c"},
		{UserID: "u", Date: NewDate(2025, 1, 1), Kind: "x", Amount: NewAmountFromCents(1), Category: "c"},
		{UserID: "u", Date: NewDate(2025, 1, 1), Kind: Income, Amount: NewAmountFromCents(0), Category: "c"},
		{UserID: "u", Date: NewDate(2025, 1, 1), Kind: Income, Amount: NewAmountFromCents(1), Category: ""},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"registro/internal/cache"
	"registro/internal/core"
	"registro/internal/schedule"
)

func newTestService(t *testing.T) (*RecurringService, *faultyStore, *cache.LRUCache[[]schedule.UpcomingDay]) {
	t.Helper()
	store := newFaultyStore()
	c := cache.NewLRUCache[[]schedule.UpcomingDay](16, time.Hour)
	svc := NewRecurringService(store, store, c)
	svc.now = func() time.Time { return time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC) }
	return svc, store, c
}

func TestRecurringServiceCreate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	in := monthly("ignored", "u1", "Housing", 5, core.NewDate(2024, 1, 5))
	last := core.NewDate(2024, 3, 5)
	in.LastGeneratedDate = &last

	got, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got.ID == "" || got.ID == "ignored" {
		t.Errorf("ID = %q, want a fresh id", got.ID)
	}
	if got.LastGeneratedDate != nil {
		t.Errorf("LastGeneratedDate = %v, want nil", got.LastGeneratedDate)
	}
	if !got.CreatedAt.Equal(svc.now()) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}

	stored, err := svc.Get(ctx, "u1", got.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Name != in.Name {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestRecurringServiceCreateInvalid(t *testing.T) {
	svc, _, _ := newTestService(t)

	tests := []struct {
		name   string
		mutate func(*core.RecurringDefinition)
	}{
		{"end before start", func(d *core.RecurringDefinition) {
			end := core.NewDate(2023, 12, 31)
			d.EndDate = &end
		}},
		{"zero amount", func(d *core.RecurringDefinition) { d.Amount = core.Amount{} }},
		{"no category", func(d *core.RecurringDefinition) { d.Category = "" }},
		{"no schedule", func(d *core.RecurringDefinition) { d.Schedule = nil }},
		{"bad day of month", func(d *core.RecurringDefinition) { d.Schedule = core.MonthlySchedule{DayOfMonth: 32} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5))
			tt.mutate(&def)
			if _, err := svc.Create(context.Background(), def); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Create() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRecurringServiceUpdate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	def, err := svc.Create(ctx, monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5)))
	if err != nil {
		t.Fatal(err)
	}

	name := "Rent"
	got, err := svc.Update(ctx, "u1", def.ID, core.RecurringPatch{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != "Rent" || got.Category != "Housing" {
		t.Errorf("Update() = %+v", got)
	}

	end := core.NewDate(2023, 1, 1)
	if _, err := svc.Update(ctx, "u1", def.ID, core.RecurringPatch{EndDate: &end}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Update(end before start) error = %v, want ErrInvalidInput", err)
	}

	if _, err := svc.Update(ctx, "u2", def.ID, core.RecurringPatch{Name: &name}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update(other user) error = %v, want ErrNotFound", err)
	}
}

func TestRecurringServiceToggle(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	def, _ := svc.Create(ctx, monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5)))

	off, err := svc.Toggle(ctx, "u1", def.ID)
	if err != nil || off.Enabled {
		t.Fatalf("Toggle() = %v, %v; want disabled", off.Enabled, err)
	}
	on, err := svc.Toggle(ctx, "u1", def.ID)
	if err != nil || !on.Enabled {
		t.Fatalf("Toggle() = %v, %v; want enabled", on.Enabled, err)
	}
}

func TestRecurringServiceDeleteKeepsTransactions(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	def, _ := svc.Create(ctx, monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5)))

	if _, err := svc.Generate(ctx, "u1", def.ID, core.NewDate(2024, 2, 5)); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "u1", def.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := svc.Get(ctx, "u1", def.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	txs := allTransactions(t, store, "u1")
	if len(txs) != 1 || txs[0].RecurringID != def.ID {
		t.Errorf("transactions after delete = %+v", txs)
	}
}

func TestRecurringServiceGenerate(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	def, _ := svc.Create(ctx, monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5)))

	// not a due date; manual generation is allowed anyway
	day := core.NewDate(2024, 2, 20)
	tx, err := svc.Generate(ctx, "u1", def.ID, day)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !tx.Date.Equal(day) || !tx.AutoGenerated || tx.RecurringID != def.ID {
		t.Errorf("Generate() = %+v", tx)
	}
	if got := marker(t, store, "u1", def.ID); got != "2024-02-20" {
		t.Errorf("marker = %q", got)
	}

	if _, err := svc.Generate(ctx, "u1", def.ID, day); !errors.Is(err, ErrAlreadyGenerated) {
		t.Errorf("second Generate() error = %v, want ErrAlreadyGenerated", err)
	}

	// an earlier date is generated but leaves the marker where it was
	if _, err := svc.Generate(ctx, "u1", def.ID, core.NewDate(2024, 2, 5)); err != nil {
		t.Fatalf("Generate(earlier) error = %v", err)
	}
	if got := marker(t, store, "u1", def.ID); got != "2024-02-20" {
		t.Errorf("marker after earlier generation = %q", got)
	}
}

func TestRecurringServiceDueDates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	def, _ := svc.Create(ctx, monthly("x", "u1", "Housing", 31, core.NewDate(2024, 1, 31)))

	got, err := svc.DueDates(ctx, "u1", def.ID, core.NewDate(2024, 1, 1), core.NewDate(2024, 4, 30))
	if err != nil {
		t.Fatalf("DueDates() error = %v", err)
	}
	want := []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}
	if len(got) != len(want) {
		t.Fatalf("DueDates() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("DueDates()[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	if _, err := svc.DueDates(ctx, "u1", def.ID, core.NewDate(2024, 5, 1), core.NewDate(2024, 4, 1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("inverted window error = %v", err)
	}
	if _, err := svc.DueDates(ctx, "u1", def.ID, core.NewDate(2000, 1, 1), core.NewDate(2024, 1, 1)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("oversized window error = %v", err)
	}
}

func TestRecurringServiceUpcomingCache(t *testing.T) {
	svc, _, c := newTestService(t)
	ctx := context.Background()
	from := core.NewDate(2024, 1, 1)

	def, _ := svc.Create(ctx, monthly("x", "u1", "Housing", 5, core.NewDate(2024, 1, 5)))

	first, err := svc.Upcoming(ctx, "u1", from, 40)
	if err != nil {
		t.Fatalf("Upcoming() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("Upcoming() = %d days, want 2", len(first))
	}
	if c.Size() != 1 {
		t.Errorf("cache size = %d, want 1", c.Size())
	}

	if _, err := svc.Toggle(ctx, "u1", def.ID); err != nil {
		t.Fatal(err)
	}
	if c.Size() != 0 {
		t.Errorf("cache size after mutation = %d, want 0", c.Size())
	}

	after, err := svc.Upcoming(ctx, "u1", from, 40)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 0 {
		t.Errorf("Upcoming() after disabling = %v, want empty", after)
	}

	if _, err := svc.Upcoming(ctx, "u1", from, MaxUpcomingDays+1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Upcoming(too many days) error = %v", err)
	}
}

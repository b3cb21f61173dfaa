package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"registro/internal/core"
	"registro/internal/storage/memory"
)

var errBoom = errors.New("boom")

// faultyStore wraps the memory store and fails selected calls.
type faultyStore struct {
	*memory.Store

	mu          sync.Mutex
	createFails map[string]bool // by category
	tagErr      error
	advanceErr  error
	listErr     error
	// beforeAdvance runs before the real compare-and-set.
	beforeAdvance func(userID, id string)
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.New(), createFails: map[string]bool{}}
}

func (f *faultyStore) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	fail := f.createFails[tx.Category]
	f.mu.Unlock()
	if fail {
		return core.Transaction{}, errBoom
	}
	return f.Store.CreateTransaction(ctx, tx)
}

func (f *faultyStore) TagAutoGenerated(ctx context.Context, userID, txID, recurringID string) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	return f.Store.TagAutoGenerated(ctx, userID, txID, recurringID)
}

func (f *faultyStore) AdvanceLastGenerated(ctx context.Context, userID, id string, expected *core.Date, next core.Date) error {
	if f.advanceErr != nil {
		return f.advanceErr
	}
	if f.beforeAdvance != nil {
		f.beforeAdvance(userID, id)
	}
	return f.Store.AdvanceLastGenerated(ctx, userID, id, expected, next)
}

func (f *faultyStore) ListEnabledRecurring(ctx context.Context) ([]core.RecurringDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListEnabledRecurring(ctx)
}

func monthly(id, user, category string, day int, start core.Date) core.RecurringDefinition {
	return core.RecurringDefinition{
		ID:        id,
		UserID:    user,
		Name:      id,
		Kind:      core.Expense,
		Amount:    core.NewAmountFromCents(1000),
		Category:  category,
		Schedule:  core.MonthlySchedule{DayOfMonth: day},
		StartDate: start,
		Enabled:   true,
	}
}

func seed(t *testing.T, s *faultyStore, defs ...core.RecurringDefinition) {
	t.Helper()
	for _, d := range defs {
		if err := s.CreateRecurring(context.Background(), d); err != nil {
			t.Fatalf("seed %s: %v", d.ID, err)
		}
	}
}

func allTransactions(t *testing.T, s *faultyStore, user string) []core.Transaction {
	t.Helper()
	txs, err := s.ListTransactions(context.Background(), user, core.NewDate(1, 1, 1), core.NewDate(9999, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	return txs
}

func marker(t *testing.T, s *faultyStore, user, id string) string {
	t.Helper()
	def, err := s.GetRecurring(context.Background(), user, id)
	if err != nil {
		t.Fatal(err)
	}
	if def.LastGeneratedDate == nil {
		return ""
	}
	return def.LastGeneratedDate.String()
}

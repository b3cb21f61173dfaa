// Package memory is an in-process store for development and tests. Data is
// lost when the process exits.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"registro/internal/core"
	"registro/internal/storage"
)

type Store struct {
	mu        sync.Mutex
	recurring map[string]core.RecurringDefinition
	txs       map[string]core.Transaction
	syncState map[string]storage.SyncStatus
	now       func() time.Time
}

func New() *Store {
	return &Store{
		recurring: make(map[string]core.RecurringDefinition),
		txs:       make(map[string]core.Transaction),
		syncState: make(map[string]storage.SyncStatus),
		now:       time.Now,
	}
}

func (s *Store) CreateRecurring(_ context.Context, def core.RecurringDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recurring[def.ID]; ok {
		return fmt.Errorf("recurring %s: %w", def.ID, core.ErrConflict)
	}
	s.recurring[def.ID] = cloneDefinition(def)
	return nil
}

func (s *Store) GetRecurring(_ context.Context, userID, id string) (core.RecurringDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.recurring[id]
	if !ok || def.UserID != userID {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	return cloneDefinition(def), nil
}

func (s *Store) ListRecurring(_ context.Context, userID string, enabledOnly bool) ([]core.RecurringDefinition, error) {
	return s.list(func(d core.RecurringDefinition) bool {
		return d.UserID == userID && (!enabledOnly || d.Enabled)
	}), nil
}

func (s *Store) ListEnabledRecurring(_ context.Context) ([]core.RecurringDefinition, error) {
	return s.list(func(d core.RecurringDefinition) bool { return d.Enabled }), nil
}

// list returns matching definitions newest first, like the SQL store.
func (s *Store) list(keep func(core.RecurringDefinition) bool) []core.RecurringDefinition {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringDefinition
	for _, d := range s.recurring {
		if keep(d) {
			out = append(out, cloneDefinition(d))
		}
	}
	slices.SortFunc(out, func(a, b core.RecurringDefinition) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) UpdateRecurring(_ context.Context, userID, id string, patch core.RecurringPatch) (core.RecurringDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.recurring[id]
	if !ok || def.UserID != userID {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	def = patch.Apply(def)
	def.UpdatedAt = s.now().UTC()
	s.recurring[id] = def
	return cloneDefinition(def), nil
}

func (s *Store) DeleteRecurring(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.recurring[id]
	if !ok || def.UserID != userID {
		return fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	delete(s.recurring, id)
	return nil
}

func (s *Store) AdvanceLastGenerated(_ context.Context, userID, id string, expected *core.Date, next core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.recurring[id]
	if !ok || def.UserID != userID {
		return fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	if !sameDate(def.LastGeneratedDate, expected) {
		return fmt.Errorf("recurring %s last generated %v: %w", id, def.LastGeneratedDate, core.ErrConflict)
	}
	def.LastGeneratedDate = &next
	def.UpdatedAt = s.now().UTC()
	s.recurring[id] = def
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", tx.ID, core.ErrConflict)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	s.txs[tx.ID] = tx
	s.syncState[tx.ID] = storage.SyncPending
	return tx, nil
}

func (s *Store) TagAutoGenerated(_ context.Context, userID, txID, recurringID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[txID]
	if !ok || tx.UserID != userID {
		return fmt.Errorf("transaction %s: %w", txID, core.ErrNotFound)
	}
	tx.AutoGenerated = true
	tx.RecurringID = recurringID
	s.txs[txID] = tx
	return nil
}

func (s *Store) FindGenerated(_ context.Context, userID, recurringID string, date core.Date) (core.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.txs {
		if tx.UserID == userID && tx.RecurringID == recurringID && tx.Date.Equal(date) {
			return tx, true, nil
		}
	}
	return core.Transaction{}, false, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.txs, id)
	delete(s.syncState, id)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || tx.UserID != userID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID && !tx.Date.Before(from) && !tx.Date.After(to) {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *Store) PendingSync(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for id, st := range s.syncState {
		if st == storage.SyncPending {
			out = append(out, s.txs[id])
		}
	}
	sortTransactions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkSynced(_ context.Context, id string) error {
	return s.mark(id, storage.SyncDone)
}

func (s *Store) MarkSyncError(_ context.Context, id string) error {
	return s.mark(id, storage.SyncError)
}

func (s *Store) RetryFailedSync(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, st := range s.syncState {
		if st == storage.SyncError {
			s.syncState[id] = storage.SyncPending
			n++
		}
	}
	return n, nil
}

func (s *Store) mark(id string, st storage.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	s.syncState[id] = st
	return nil
}

func (s *Store) GetSyncStatus(_ context.Context, id string) (storage.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.syncState[id]
	if !ok {
		return "", fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return st, nil
}

func sortTransactions(txs []core.Transaction) {
	slices.SortFunc(txs, func(a, b core.Transaction) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func sameDate(a, b *core.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneDefinition(d core.RecurringDefinition) core.RecurringDefinition {
	if d.EndDate != nil {
		v := *d.EndDate
		d.EndDate = &v
	}
	if d.LastGeneratedDate != nil {
		v := *d.LastGeneratedDate
		d.LastGeneratedDate = &v
	}
	return d
}

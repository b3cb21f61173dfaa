package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"registro/internal/cache"
	"registro/internal/core"
	"registro/internal/schedule"
)

const (
	// MaxUpcomingDays bounds the look-ahead of Upcoming.
	MaxUpcomingDays = 366
	// MaxPreviewDays bounds the window of a due date preview.
	MaxPreviewDays = 3660
)

// RecurringService manages a user's recurring definitions.
type RecurringService struct {
	store        RecurringStore
	ledger       LedgerStore
	materializer *Materializer
	upcoming     cache.Cache[[]schedule.UpcomingDay]
	now          func() time.Time
}

// NewRecurringService creates the service. upcoming may be nil to disable
// caching of upcoming lists.
func NewRecurringService(store RecurringStore, ledger LedgerStore, upcoming cache.Cache[[]schedule.UpcomingDay]) *RecurringService {
	return &RecurringService{
		store:        store,
		ledger:       ledger,
		materializer: NewMaterializer(store, ledger),
		upcoming:     upcoming,
		now:          time.Now,
	}
}

// Create validates def and stores it with a fresh id. Any
// LastGeneratedDate on the input is ignored.
func (s *RecurringService) Create(ctx context.Context, def core.RecurringDefinition) (core.RecurringDefinition, error) {
	now := s.now().UTC()
	def.ID = uuid.NewString()
	def.LastGeneratedDate = nil
	def.CreatedAt = now
	def.UpdatedAt = now
	if err := def.Validate(); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.store.CreateRecurring(ctx, def); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("create recurring: %w", err)
	}
	s.invalidate(def.UserID)
	return def, nil
}

func (s *RecurringService) Get(ctx context.Context, userID, id string) (core.RecurringDefinition, error) {
	return s.store.GetRecurring(ctx, userID, id)
}

func (s *RecurringService) List(ctx context.Context, userID string, enabledOnly bool) ([]core.RecurringDefinition, error) {
	return s.store.ListRecurring(ctx, userID, enabledOnly)
}

// Update applies a partial update after validating the merged result.
func (s *RecurringService) Update(ctx context.Context, userID, id string, patch core.RecurringPatch) (core.RecurringDefinition, error) {
	current, err := s.store.GetRecurring(ctx, userID, id)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	if patch.IsEmpty() {
		return current, nil
	}
	if err := patch.Apply(current).Validate(); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	updated, err := s.store.UpdateRecurring(ctx, userID, id, patch)
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("update recurring: %w", err)
	}
	s.invalidate(userID)
	return updated, nil
}

// Delete removes the definition. Transactions already generated from it
// are kept.
func (s *RecurringService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteRecurring(ctx, userID, id); err != nil {
		return err
	}
	s.invalidate(userID)
	return nil
}

// Toggle flips the enabled flag and returns the updated definition.
func (s *RecurringService) Toggle(ctx context.Context, userID, id string) (core.RecurringDefinition, error) {
	current, err := s.store.GetRecurring(ctx, userID, id)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	enabled := !current.Enabled
	return s.Update(ctx, userID, id, core.RecurringPatch{Enabled: &enabled})
}

// Generate materializes the definition on date on request, whether or not
// the schedule has a due date there.
func (s *RecurringService) Generate(ctx context.Context, userID, id string, date core.Date) (core.Transaction, error) {
	def, err := s.store.GetRecurring(ctx, userID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if _, found, err := s.ledger.FindGenerated(ctx, userID, id, date); err != nil {
		return core.Transaction{}, fmt.Errorf("lookup generated: %w", err)
	} else if found {
		return core.Transaction{}, fmt.Errorf("%w: %s", ErrAlreadyGenerated, date)
	}

	tx, err := s.materializer.Materialize(ctx, def, date)
	if err != nil && !errors.Is(err, ErrStoreUpdate) {
		return core.Transaction{}, err
	}
	s.invalidate(userID)
	return tx, err
}

// DueDates previews the remaining due dates of a definition in [from, to].
func (s *RecurringService) DueDates(ctx context.Context, userID, id string, from, to core.Date) ([]core.Date, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: from %s after to %s", ErrInvalidInput, from, to)
	}
	if from.DaysUntil(to) > MaxPreviewDays {
		return nil, fmt.Errorf("%w: window longer than %d days", ErrInvalidInput, MaxPreviewDays)
	}
	def, err := s.store.GetRecurring(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return schedule.DueDates(def, from, to), nil
}

// Upcoming groups the user's enabled definitions by due date over
// [from, from+days].
func (s *RecurringService) Upcoming(ctx context.Context, userID string, from core.Date, days int) ([]schedule.UpcomingDay, error) {
	if days < 0 || days > MaxUpcomingDays {
		return nil, fmt.Errorf("%w: days must be between 0 and %d", ErrInvalidInput, MaxUpcomingDays)
	}

	key := upcomingKey(userID, from, days)
	if s.upcoming != nil {
		if v, ok := s.upcoming.Get(key); ok {
			return v, nil
		}
	}

	defs, err := s.store.ListRecurring(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	out := schedule.Upcoming(defs, from, days)
	if s.upcoming != nil {
		s.upcoming.Set(key, out)
	}
	return out, nil
}

func upcomingKey(userID string, from core.Date, days int) string {
	return userID + "|" + from.String() + "|" + strconv.Itoa(days)
}

func (s *RecurringService) invalidate(userID string) {
	if s.upcoming != nil {
		s.upcoming.DeletePrefix(userID + "|")
	}
}

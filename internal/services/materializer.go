package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"registro/internal/core"
)

// Materializer turns one due date of a recurring definition into a ledger
// transaction and advances the definition's last generated date.
type Materializer struct {
	recurring RecurringStore
	ledger    LedgerStore
}

func NewMaterializer(recurring RecurringStore, ledger LedgerStore) *Materializer {
	return &Materializer{recurring: recurring, ledger: ledger}
}

// Materialize creates the transaction for def on dueDate. It does not check
// whether one already exists.
//
// The marker is advanced with a compare-and-set against def.LastGeneratedDate,
// the value the caller read. If another run moved it first, the transaction
// created here is deleted again and ErrConcurrentGeneration is returned.
// ErrStoreUpdate is returned together with the created transaction when the
// marker could not be written.
func (m *Materializer) Materialize(ctx context.Context, def core.RecurringDefinition, dueDate core.Date) (core.Transaction, error) {
	tx := core.Transaction{
		ID:            uuid.NewString(),
		UserID:        def.UserID,
		Date:          dueDate,
		Kind:          def.Kind,
		Amount:        def.Amount,
		Category:      def.Category,
		PaymentMethod: def.PaymentMethod,
		Memo:          def.Memo,
	}

	created, err := m.ledger.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %w", ErrLedgerWrite, err)
	}

	if err := m.ledger.TagAutoGenerated(ctx, def.UserID, created.ID, def.ID); err != nil {
		slog.WarnContext(ctx, "Failed to tag generated transaction",
			"recurring_id", def.ID,
			"transaction_id", created.ID,
			"error", err)
	} else {
		created.AutoGenerated = true
		created.RecurringID = def.ID
	}

	// A manual generation for an older date never moves the marker back.
	next := dueDate
	if def.LastGeneratedDate != nil && def.LastGeneratedDate.After(dueDate) {
		next = *def.LastGeneratedDate
	}

	if err := m.recurring.AdvanceLastGenerated(ctx, def.UserID, def.ID, def.LastGeneratedDate, next); err != nil {
		if errors.Is(err, core.ErrConflict) {
			if derr := m.ledger.DeleteTransaction(ctx, def.UserID, created.ID); derr != nil {
				slog.ErrorContext(ctx, "Failed to remove transaction after concurrent generation",
					"recurring_id", def.ID,
					"transaction_id", created.ID,
					"error", derr)
			}
			return core.Transaction{}, fmt.Errorf("%w: definition %s on %s", ErrConcurrentGeneration, def.ID, dueDate)
		}
		return created, fmt.Errorf("%w: %w", ErrStoreUpdate, err)
	}

	slog.InfoContext(ctx, "Materialized recurring transaction",
		"recurring_id", def.ID,
		"user_id", def.UserID,
		"transaction_id", created.ID,
		"due_date", dueDate.String(),
		"amount", def.Amount.String())

	return created, nil
}

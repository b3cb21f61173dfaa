package services

import (
	"context"

	"registro/internal/core"
)

// Every store call takes the owning user explicitly; nothing is resolved
// from ambient state.
type (
	// RecurringStore persists recurring definitions.
	RecurringStore interface {
		CreateRecurring(ctx context.Context, def core.RecurringDefinition) error
		GetRecurring(ctx context.Context, userID, id string) (core.RecurringDefinition, error)
		ListRecurring(ctx context.Context, userID string, enabledOnly bool) ([]core.RecurringDefinition, error)
		// ListEnabledRecurring returns the enabled definitions of all users.
		ListEnabledRecurring(ctx context.Context) ([]core.RecurringDefinition, error)
		UpdateRecurring(ctx context.Context, userID, id string, patch core.RecurringPatch) (core.RecurringDefinition, error)
		DeleteRecurring(ctx context.Context, userID, id string) error
		// AdvanceLastGenerated sets the marker to next only if it still
		// equals expected (nil meaning never generated). A mismatch returns
		// core.ErrConflict.
		AdvanceLastGenerated(ctx context.Context, userID, id string, expected *core.Date, next core.Date) error
	}

	// LedgerStore is what the materializer needs from the ledger.
	LedgerStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		TagAutoGenerated(ctx context.Context, userID, txID, recurringID string) error
		// FindGenerated looks up a transaction already generated from the
		// definition for the given date.
		FindGenerated(ctx context.Context, userID, recurringID string, date core.Date) (core.Transaction, bool, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	// TransactionStore is the full ledger repository behind LedgerService.
	TransactionStore interface {
		LedgerStore
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error)
	}

	// SyncPublisher announces ledger changes to downstream mirrors.
	SyncPublisher interface {
		PublishTransactionSync(ctx context.Context, userID, txID string) error
		// PublishTransactionDelete carries the date so mirrors can locate
		// the row after the transaction is gone.
		PublishTransactionDelete(ctx context.Context, userID, txID string, date core.Date) error
	}
)

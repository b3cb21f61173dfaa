package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"registro/internal/amqp"
	"registro/internal/core"
	"registro/internal/sheets"
	"registro/internal/storage"
)

// SyncStore is the part of the ledger the sync worker reads and marks.
type SyncStore interface {
	GetTransactionByID(ctx context.Context, id string) (core.Transaction, error)
	GetSyncStatus(ctx context.Context, id string) (storage.SyncStatus, error)
	PendingSync(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
	RetryFailedSync(ctx context.Context) (int, error)
}

// SyncWorker mirrors ledger transactions to Google Sheets.
type SyncWorker struct {
	store     SyncStore
	writer    sheets.TransactionWriter
	deleter   sheets.TransactionDeleter
	batchSize int
}

func NewSyncWorker(store SyncStore, writer sheets.TransactionWriter, deleter sheets.TransactionDeleter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{
		store:     store,
		writer:    writer,
		deleter:   deleter,
		batchSize: batchSize,
	}
}

// HandleMessage dispatches a queue message by action. A returned error
// requeues the message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	switch msg.Action {
	case amqp.ActionDelete:
		return w.HandleDeleteMessage(ctx, msg)
	default:
		return w.HandleSyncMessage(ctx, msg)
	}
}

// HandleSyncMessage appends the transaction named by msg unless it has
// already been mirrored.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message", "id", msg.ID)

	status, err := w.store.GetSyncStatus(ctx, msg.ID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted before the worker got to it; the delete message follows.
		slog.InfoContext(ctx, "Transaction no longer exists, skipping sync", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}
	if status == storage.SyncDone {
		slog.DebugContext(ctx, "Transaction already synced", "id", msg.ID)
		return nil
	}

	tx, err := w.store.GetTransactionByID(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	return w.syncToSheets(ctx, tx)
}

// HandleDeleteMessage clears the mirrored row of a deleted transaction.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing delete message", "id", msg.ID)

	if w.deleter == nil {
		slog.WarnContext(ctx, "No transaction deleter configured, skipping sheet deletion", "id", msg.ID)
		return nil
	}

	date, err := core.ParseDate(msg.Date)
	if err != nil {
		// Undecodable; requeueing would loop forever.
		slog.ErrorContext(ctx, "Delete message without valid date", "id", msg.ID, "error", err)
		return nil
	}

	if err := w.deleter.Delete(ctx, msg.ID, date); err != nil {
		if errors.Is(err, sheets.ErrRowNotFound) {
			slog.InfoContext(ctx, "Transaction was never mirrored, nothing to delete", "id", msg.ID)
			return nil
		}
		return fmt.Errorf("delete transaction row: %w", err)
	}

	slog.InfoContext(ctx, "Deleted transaction from Google Sheets",
		"id", msg.ID,
		"timestamp", msg.Timestamp)
	return nil
}

// ProcessPending mirrors up to one batch of transactions still pending. It
// is the backstop for lost queue messages and reports how many were synced.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending pass when the worker starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.PendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := 0
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncToSheets(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", tx.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncToSheets(ctx context.Context, tx core.Transaction) error {
	ref, err := w.writer.Append(ctx, tx)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheets: %w", err)
	}

	// The row exists now; a failed mark only risks a duplicate later.
	if err := w.store.MarkSynced(ctx, tx.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Synced transaction",
		"id", tx.ID,
		"sheets_ref", ref,
		"amount", tx.Amount.String(),
		"auto_generated", tx.AutoGenerated)
	return nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"registro/internal/core"
)

// LedgerService writes transactions to the store and announces each change
// to the sync queue. Publishing is best effort: the store is the source of
// truth and the sheets worker recovers missed messages from it.
type LedgerService struct {
	store     TransactionStore
	publisher SyncPublisher
}

var _ LedgerStore = (*LedgerService)(nil)

// NewLedgerService creates the service. publisher may be nil when no
// message broker is configured.
func NewLedgerService(store TransactionStore, publisher SyncPublisher) *LedgerService {
	return &LedgerService{store: store, publisher: publisher}
}

// CreateTransaction validates and saves tx, assigning an id when missing.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("validate transaction: %w", err)
	}

	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publishSync(ctx, created.UserID, created.ID)
	return created, nil
}

func (s *LedgerService) TagAutoGenerated(ctx context.Context, userID, txID, recurringID string) error {
	if err := s.store.TagAutoGenerated(ctx, userID, txID, recurringID); err != nil {
		return fmt.Errorf("tag transaction: %w", err)
	}
	return nil
}

func (s *LedgerService) FindGenerated(ctx context.Context, userID, recurringID string, date core.Date) (core.Transaction, bool, error) {
	return s.store.FindGenerated(ctx, userID, recurringID, date)
}

// DeleteTransaction removes a transaction and publishes a delete message.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id string) error {
	tx, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message")
		return nil
	}
	if err := s.publisher.PublishTransactionDelete(ctx, userID, id, tx.Date); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message",
			"transaction_id", id, "error", err)
	}
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

// ListTransactions returns the user's transactions dated within [from, to].
func (s *LedgerService) ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	if from.After(to) {
		return nil, fmt.Errorf("invalid range: %s after %s", from, to)
	}
	return s.store.ListTransactions(ctx, userID, from, to)
}

func (s *LedgerService) publishSync(ctx context.Context, userID, id string) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, userID, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"transaction_id", id, "error", err)
	}
}

// Close closes the store and publisher when they hold resources.
func (s *LedgerService) Close() error {
	var errs []error
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}

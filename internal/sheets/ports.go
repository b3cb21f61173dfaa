package sheets

import (
	"context"
	"errors"

	"registro/internal/core"
)

// ErrRowNotFound is returned by a TransactionDeleter when no row carries
// the transaction id.
var ErrRowNotFound = errors.New("transaction row not found")

// Ports for outbound adapters.
type (
	// TransactionWriter mirrors a ledger transaction as a spreadsheet row.
	TransactionWriter interface {
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// TransactionDeleter removes the mirrored row of a transaction. The
	// date selects the yearly sheet the row was written to.
	TransactionDeleter interface {
		Delete(ctx context.Context, txID string, date core.Date) error
	}
)

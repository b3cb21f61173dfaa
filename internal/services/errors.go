package services

import "errors"

var (
	// ErrLedgerWrite means the transaction could not be created. Nothing
	// was persisted and the marker is unchanged.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrStoreUpdate means the transaction exists but the definition's
	// last generated date could not be advanced.
	ErrStoreUpdate = errors.New("recurring store update failed")

	// ErrConcurrentGeneration means another run advanced the marker first.
	// The transaction created by this run has been removed.
	ErrConcurrentGeneration = errors.New("concurrent generation")

	// ErrAlreadyGenerated is returned by a manual generation for a date
	// that already has a transaction from the same definition.
	ErrAlreadyGenerated = errors.New("transaction already generated for date")
)

// ErrInvalidInput wraps validation failures of caller-supplied data.
var ErrInvalidInput = errors.New("invalid input")

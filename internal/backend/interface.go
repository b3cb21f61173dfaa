// Package backend builds the storage and messaging stack selected by
// configuration.
package backend

import (
	"context"
	"time"

	"registro/internal/cache"
	"registro/internal/schedule"
	"registro/internal/services"
)

// BackendType names a storage implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

func (t BackendType) String() string { return string(t) }

// Store is everything the services need from persistence.
type Store interface {
	services.RecurringStore
	services.TransactionStore
}

// Pinger reports whether the store is reachable. Only stores with an
// external resource implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the wired stack. Ledger publishes sync messages in front
// of Store; Recurring materializes through Ledger. Pinger is nil for the
// memory backend.
type BackendResult struct {
	Store     Store
	Ledger    *services.LedgerService
	Recurring *services.RecurringService
	Upcoming  *cache.LRUCache[[]schedule.UpcomingDay]
	Pinger    Pinger
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// AMQP is optional; without a URL no sync messages are published.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Upcoming lists are cached per user; size 0 disables the cache.
	UpcomingCacheSize int
	UpcomingCacheTTL  time.Duration
}

package backend

import (
	"context"
	"fmt"
	"log/slog"

	"registro/internal/amqp"
	"registro/internal/cache"
	"registro/internal/schedule"
	"registro/internal/services"
	"registro/internal/storage"
	"registro/internal/storage/memory"
)

var _ Factory = (*DefaultFactory)(nil)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// dial is replaced in tests.
	dial func(url, exchange, queue string) (services.SyncPublisher, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) *DefaultFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		dial: func(url, exchange, queue string) (services.SyncPublisher, error) {
			return amqp.NewClient(url, exchange, queue)
		},
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store  Store
		pinger Pinger
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store, pinger = repo, repo
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		store = memory.New()
		f.logger.InfoContext(ctx, "Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	ledger := services.NewLedgerService(store, f.publisher(ctx, config))

	var upcoming *cache.LRUCache[[]schedule.UpcomingDay]
	var recurring *services.RecurringService
	if config.UpcomingCacheSize > 0 {
		upcoming = cache.NewLRUCache[[]schedule.UpcomingDay](config.UpcomingCacheSize, config.UpcomingCacheTTL)
		recurring = services.NewRecurringService(store, ledger, upcoming)
	} else {
		recurring = services.NewRecurringService(store, ledger, nil)
	}

	return &BackendResult{
		Store:     store,
		Ledger:    ledger,
		Recurring: recurring,
		Upcoming:  upcoming,
		Pinger:    pinger,
		// Closing the ledger closes the store and the publisher.
		Cleanup: ledger.Close,
	}, nil
}

// publisher connects to the broker when configured. A failed connection is
// logged and the backend runs without sync messages.
func (f *DefaultFactory) publisher(ctx context.Context, config Config) services.SyncPublisher {
	if config.AMQPURL == "" {
		return nil
	}
	pub, err := f.dial(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", "error", err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return pub
}

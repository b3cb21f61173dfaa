package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often pending transactions are retried (default: 1m)
	PollInterval time.Duration

	// RetryInterval is how often failed transactions are put back to
	// pending (default: 1h)
	RetryInterval time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:  time.Minute,
		RetryInterval: time.Hour,
	}
}

// SyncProcessor periodically drains pending transactions through a
// SyncWorker, independently of the message queue.
type SyncProcessor struct {
	worker *SyncWorker
	store  SyncStore
	config SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(worker *SyncWorker, store SyncStore, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		worker: worker,
		store:  store,
		config: config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"retry_interval", p.config.RetryInterval)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	retryTicker := time.NewTicker(p.config.RetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.poll(ctx)
		case <-retryTicker.C:
			p.retryFailed(ctx)
		}
	}
}

func (p *SyncProcessor) poll(ctx context.Context) {
	n, err := p.worker.ProcessPending(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to process pending transactions", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Synced pending transactions", "count", n)
	}
}

func (p *SyncProcessor) retryFailed(ctx context.Context) {
	n, err := p.store.RetryFailedSync(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reset failed syncs", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset failed syncs for retry", "count", n)
	}
}

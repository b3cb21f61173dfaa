package worker

import (
	"context"
	"testing"
	"time"

	"registro/internal/storage"
	"registro/internal/storage/memory"
)

func TestSyncProcessorLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sheet := &fakeSheet{}
	w := NewSyncWorker(store, sheet, sheet, 10)
	seedTransactions(t, store, "t1", "t2")

	p := NewSyncProcessor(w, store, SyncProcessorConfig{
		PollInterval:  10 * time.Millisecond,
		RetryInterval: time.Hour,
	})
	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sheet.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sheet.count() != 2 {
		t.Errorf("rows = %d, want 2", sheet.count())
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.IsRunning() {
		t.Error("processor still running after Stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop() on stopped processor error = %v", err)
	}
}

func TestSyncProcessorRetriesFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sheet := &fakeSheet{}
	w := NewSyncWorker(store, sheet, sheet, 10)
	seedTransactions(t, store, "t1")
	if err := store.MarkSyncError(ctx, "t1"); err != nil {
		t.Fatal(err)
	}

	p := NewSyncProcessor(w, store, SyncProcessorConfig{
		PollInterval:  10 * time.Millisecond,
		RetryInterval: 20 * time.Millisecond,
	})
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for status(t, store, "t1") != storage.SyncDone && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := status(t, store, "t1"); got != storage.SyncDone {
		t.Errorf("status = %q, want %q", got, storage.SyncDone)
	}
	if sheet.count() != 1 {
		t.Errorf("rows = %d, want 1", sheet.count())
	}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	cfg := DefaultSyncProcessorConfig()
	if cfg.PollInterval != time.Minute {
		t.Errorf("PollInterval = %v, want 1m", cfg.PollInterval)
	}
	if cfg.RetryInterval != time.Hour {
		t.Errorf("RetryInterval = %v, want 1h", cfg.RetryInterval)
	}
}

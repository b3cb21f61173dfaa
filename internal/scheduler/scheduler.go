// Package scheduler triggers the daily recurring generation on a cron spec.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"registro/internal/core"
	"registro/internal/services"
)

// Runner is the batch the scheduler drives.
type Runner interface {
	ProcessDue(ctx context.Context, today core.Date) services.BatchResult
}

type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	spec   string
	loc    *time.Location
	now    func() time.Time
}

// New validates spec (standard five fields or a descriptor such as
// "@daily") and builds a scheduler firing in loc. Overlapping runs are
// skipped.
func New(runner Runner, spec string, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	logger := slogLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	return &Scheduler{
		cron:   c,
		runner: runner,
		spec:   spec,
		loc:    loc,
		now:    time.Now,
	}, nil
}

// Today is the calendar date in the scheduler's location. This is the
// only place the worker reads the clock.
func (s *Scheduler) Today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

// RunOnce processes the definitions due today.
func (s *Scheduler) RunOnce(ctx context.Context) services.BatchResult {
	today := s.Today()
	start := time.Now()
	res := s.runner.ProcessDue(ctx, today)
	slog.InfoContext(ctx, "Scheduled run finished",
		"date", today.String(),
		"created", len(res.Created),
		"repaired", len(res.Repaired),
		"failed", len(res.Failures),
		"duration", time.Since(start))
	return res
}

// Start registers the job and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("add recurring job: %w", err)
	}

	s.cron.Start()
	slog.InfoContext(ctx, "Scheduler started", "spec", s.spec, "timezone", s.loc.String())

	<-ctx.Done()
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Scheduler stopped")
}

// slogLogger adapts cron's logger to slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"registro/internal/core"
	"registro/internal/schedule"
)

// Failure records why one definition was not materialized.
type Failure struct {
	DefinitionID string
	UserID       string
	Err          error
}

func (f Failure) Error() string {
	if f.DefinitionID == "" {
		return f.Err.Error()
	}
	return fmt.Sprintf("definition %s: %v", f.DefinitionID, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// BatchResult is the outcome of one daily run.
type BatchResult struct {
	Created []core.Transaction
	// Repaired lists definitions whose transaction already existed and
	// only needed the marker advanced.
	Repaired []string
	Failures []Failure
}

// RecurringProcessor drives the daily materialization of due definitions.
type RecurringProcessor struct {
	store        RecurringStore
	ledger       LedgerStore
	materializer *Materializer
	concurrency  int
}

// NewRecurringProcessor creates a processor. concurrency below 2 processes
// definitions one at a time in input order.
func NewRecurringProcessor(store RecurringStore, ledger LedgerStore, concurrency int) *RecurringProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RecurringProcessor{
		store:        store,
		ledger:       ledger,
		materializer: NewMaterializer(store, ledger),
		concurrency:  concurrency,
	}
}

type outcome struct {
	created  *core.Transaction
	repaired bool
	failure  *Failure
}

// GenerateDueToday materializes every definition in defs that is due on
// today and not yet generated for it. A failing definition never stops the
// others; failures are logged and collected in the result.
func (p *RecurringProcessor) GenerateDueToday(ctx context.Context, defs []core.RecurringDefinition, today core.Date) BatchResult {
	outcomes := make([]outcome, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, def := range defs {
		if !def.Enabled || !schedule.IsDueOn(def, today) {
			continue
		}
		if def.LastGeneratedDate != nil && def.LastGeneratedDate.Equal(today) {
			continue
		}
		g.Go(func() error {
			outcomes[i] = p.generateOne(gctx, def, today)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	var res BatchResult
	for i, o := range outcomes {
		switch {
		case o.created != nil:
			res.Created = append(res.Created, *o.created)
		case o.repaired:
			res.Repaired = append(res.Repaired, defs[i].ID)
		case o.failure != nil:
			res.Failures = append(res.Failures, *o.failure)
		}
	}

	slog.InfoContext(ctx, "Recurring generation complete",
		"date", today.String(),
		"checked", len(defs),
		"created", len(res.Created),
		"repaired", len(res.Repaired),
		"failed", len(res.Failures))

	return res
}

func (p *RecurringProcessor) generateOne(ctx context.Context, def core.RecurringDefinition, today core.Date) outcome {
	fail := func(err error) outcome {
		slog.ErrorContext(ctx, "Failed to generate recurring transaction",
			"recurring_id", def.ID,
			"user_id", def.UserID,
			"date", today.String(),
			"error", err)
		return outcome{failure: &Failure{DefinitionID: def.ID, UserID: def.UserID, Err: err}}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// A previous run may have created the transaction and then failed to
	// store the marker. Repair the marker instead of creating a duplicate.
	existing, found, err := p.ledger.FindGenerated(ctx, def.UserID, def.ID, today)
	if err != nil {
		return fail(fmt.Errorf("%w: lookup: %w", ErrLedgerWrite, err))
	}
	if found {
		if err := p.store.AdvanceLastGenerated(ctx, def.UserID, def.ID, def.LastGeneratedDate, today); err != nil {
			if errors.Is(err, core.ErrConflict) {
				// Another run already completed this definition.
				slog.InfoContext(ctx, "Recurring transaction already generated",
					"recurring_id", def.ID,
					"transaction_id", existing.ID,
					"date", today.String())
				return outcome{}
			}
			return fail(fmt.Errorf("%w: %w", ErrStoreUpdate, err))
		}
		slog.InfoContext(ctx, "Repaired last generated date",
			"recurring_id", def.ID,
			"transaction_id", existing.ID,
			"date", today.String())
		return outcome{repaired: true}
	}

	tx, err := p.materializer.Materialize(ctx, def, today)
	if err != nil {
		return fail(err)
	}
	return outcome{created: &tx}
}

// ProcessDue lists the enabled definitions of every user and runs
// GenerateDueToday over them. A listing failure is reported as a failure in
// the result.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, today core.Date) BatchResult {
	defs, err := p.store.ListEnabledRecurring(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list recurring definitions", "error", err)
		return BatchResult{Failures: []Failure{{Err: fmt.Errorf("list recurring: %w", err)}}}
	}

	slog.InfoContext(ctx, "Processing recurring definitions",
		"total_enabled", len(defs),
		"processing_date", today.String())

	return p.GenerateDueToday(ctx, defs, today)
}

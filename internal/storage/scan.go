package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"registro/internal/core"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanRecurring(s scanner) (core.RecurringDefinition, error) {
	var (
		def                      core.RecurringDefinition
		kind, amount, freq, opts string
		start, created, updated  string
		end, last                sql.NullString
	)
	err := s.Scan(&def.ID, &def.UserID, &def.Name, &kind, &amount, &def.Category,
		&def.PaymentMethod, &def.Memo, &freq, &opts, &start, &end, &def.Enabled, &last,
		&created, &updated)
	if err != nil {
		return core.RecurringDefinition{}, err
	}

	def.Kind = core.Kind(kind)
	if def.Amount, err = core.ParseAmount(amount); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s amount %q: %w", def.ID, amount, err)
	}
	if def.Schedule, err = core.ParseSchedule(core.Frequency(freq), []byte(opts)); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s: %w", def.ID, err)
	}
	if def.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s start: %w", def.ID, err)
	}
	if def.EndDate, err = parseNullDate(end); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s end: %w", def.ID, err)
	}
	if def.LastGeneratedDate, err = parseNullDate(last); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s last generated: %w", def.ID, err)
	}
	def.CreatedAt = parseTimestamp(created)
	def.UpdatedAt = parseTimestamp(updated)
	return def, nil
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t                      core.Transaction
		date, kind, amount, ca string
		recurringID            sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &date, &kind, &amount, &t.Category,
		&t.PaymentMethod, &t.Memo, &t.AutoGenerated, &recurringID, &ca)
	if err != nil {
		return core.Transaction{}, err
	}

	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s date: %w", t.ID, err)
	}
	if t.Amount, err = core.ParseAmount(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s amount %q: %w", t.ID, amount, err)
	}
	t.Kind = core.Kind(kind)
	t.RecurringID = recurringID.String
	t.CreatedAt = parseTimestamp(ca)
	return t, nil
}

func transactionOrNotFound(t core.Transaction, err error) (core.Transaction, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func parseNullDate(v sql.NullString) (*core.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableDate(d *core.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func requireOneRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

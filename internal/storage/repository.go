// Package storage is the SQLite persistence layer for recurring definitions
// and the transaction ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"registro/internal/core"

	_ "modernc.org/sqlite"
)

// SyncStatus tracks whether a transaction has been mirrored downstream.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncDone    SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// timestampLayout has fixed width so that text ordering matches time ordering.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository ready", "path", dbPath)
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const recurringColumns = `id, user_id, name, kind, amount, category, payment_method, memo,
	frequency, frequency_options, start_date, end_date, enabled, last_generated_date,
	created_at, updated_at`

func (r *SQLiteRepository) CreateRecurring(ctx context.Context, def core.RecurringDefinition) error {
	opts, err := core.MarshalScheduleOptions(def.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO recurring_definitions (`+recurringColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.UserID, def.Name, string(def.Kind), def.Amount.String(), def.Category,
		def.PaymentMethod, def.Memo, string(def.Frequency()), string(opts),
		def.StartDate.String(), nullableDate(def.EndDate), def.Enabled, nullableDate(def.LastGeneratedDate),
		def.CreatedAt.UTC().Format(timestampLayout), def.UpdatedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("insert recurring: %w", err)
	}

	slog.InfoContext(ctx, "Recurring definition saved",
		"id", def.ID,
		"user_id", def.UserID,
		"frequency", def.Frequency())
	return nil
}

func (r *SQLiteRepository) GetRecurring(ctx context.Context, userID, id string) (core.RecurringDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recurringColumns+`
		FROM recurring_definitions WHERE id = ? AND user_id = ?`, id, userID)
	def, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("get recurring: %w", err)
	}
	return def, nil
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context, userID string, enabledOnly bool) ([]core.RecurringDefinition, error) {
	query := `SELECT ` + recurringColumns + ` FROM recurring_definitions WHERE user_id = ?`
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at DESC, id`
	return r.queryRecurring(ctx, query, userID)
}

func (r *SQLiteRepository) ListEnabledRecurring(ctx context.Context) ([]core.RecurringDefinition, error) {
	return r.queryRecurring(ctx, `SELECT `+recurringColumns+`
		FROM recurring_definitions WHERE enabled = 1 ORDER BY created_at DESC, id`)
}

func (r *SQLiteRepository) queryRecurring(ctx context.Context, query string, args ...any) ([]core.RecurringDefinition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recurring: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringDefinition
	for rows.Next() {
		def, err := scanRecurring(rows)
		if err != nil {
			// One corrupt row must not hide the others from the batch.
			slog.ErrorContext(ctx, "Skipping unreadable recurring definition", "error", err)
			continue
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recurring: %w", err)
	}
	return out, nil
}

// UpdateRecurring applies patch inside a transaction. The last generated
// date is never written here; only AdvanceLastGenerated moves it.
func (r *SQLiteRepository) UpdateRecurring(ctx context.Context, userID, id string, patch core.RecurringPatch) (core.RecurringDefinition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+recurringColumns+`
		FROM recurring_definitions WHERE id = ? AND user_id = ?`, id, userID)
	current, err := scanRecurring(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringDefinition{}, fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("get recurring: %w", err)
	}

	def := patch.Apply(current)
	def.UpdatedAt = time.Now().UTC()
	opts, err := core.MarshalScheduleOptions(def.Schedule)
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("encode schedule: %w", err)
	}

	_, err = tx.ExecContext(ctx, `UPDATE recurring_definitions SET
		name = ?, kind = ?, amount = ?, category = ?, payment_method = ?, memo = ?,
		frequency = ?, frequency_options = ?, start_date = ?, end_date = ?, enabled = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		def.Name, string(def.Kind), def.Amount.String(), def.Category, def.PaymentMethod, def.Memo,
		string(def.Frequency()), string(opts), def.StartDate.String(), nullableDate(def.EndDate), def.Enabled,
		def.UpdatedAt.Format(timestampLayout), id, userID)
	if err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("update recurring: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.RecurringDefinition{}, fmt.Errorf("commit: %w", err)
	}
	return def, nil
}

func (r *SQLiteRepository) DeleteRecurring(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recurring_definitions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete recurring: %w", err)
	}
	return requireOneRow(res, "recurring", id)
}

// AdvanceLastGenerated is a compare-and-set on last_generated_date.
func (r *SQLiteRepository) AdvanceLastGenerated(ctx context.Context, userID, id string, expected *core.Date, next core.Date) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recurring_definitions
		SET last_generated_date = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND last_generated_date IS ?`,
		next.String(), time.Now().UTC().Format(timestampLayout), id, userID, nullableDate(expected))
	if err != nil {
		return fmt.Errorf("advance last generated: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var stored sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT last_generated_date FROM recurring_definitions
		WHERE id = ? AND user_id = ?`, id, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("recurring %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read last generated: %w", err)
	}
	return fmt.Errorf("recurring %s last generated %q: %w", id, stored.String, core.ErrConflict)
}

const transactionColumns = `id, user_id, date, kind, amount, category, payment_method, memo,
	auto_generated, recurring_id, created_at`

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Date.String(), string(t.Kind), t.Amount.String(), t.Category,
		t.PaymentMethod, t.Memo, t.AutoGenerated, nullableString(t.RecurringID),
		t.CreatedAt.UTC().Format(timestampLayout), string(SyncPending))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", t.UserID,
		"date", t.Date.String(),
		"amount", t.Amount.String())
	return t, nil
}

func (r *SQLiteRepository) TagAutoGenerated(ctx context.Context, userID, txID, recurringID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET auto_generated = 1, recurring_id = ?
		WHERE id = ? AND user_id = ?`, recurringID, txID, userID)
	if err != nil {
		return fmt.Errorf("tag transaction: %w", err)
	}
	return requireOneRow(res, "transaction", txID)
}

func (r *SQLiteRepository) FindGenerated(ctx context.Context, userID, recurringID string, date core.Date) (core.Transaction, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND recurring_id = ? AND date = ?
		ORDER BY created_at LIMIT 1`, userID, recurringID, date.String())
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, fmt.Errorf("find generated: %w", err)
	}
	return t, true, nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireOneRow(res, "transaction", id)
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE id = ? AND user_id = ?`, id, userID)
	return transactionOrNotFound(scanTransaction(row))
}

// GetTransactionByID loads a transaction for the sync worker, which only
// knows the id from the queue message.
func (r *SQLiteRepository) GetTransactionByID(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return transactionOrNotFound(scanTransaction(row))
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, created_at, id`, userID, from.String(), to.String())
}

// PendingSync returns the oldest transactions not yet mirrored.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE sync_status = ? ORDER BY created_at, id LIMIT ?`, string(SyncPending), limit)
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, SyncDone)
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, SyncError)
}

// GetSyncStatus reports whether a transaction has been mirrored.
func (r *SQLiteRepository) GetSyncStatus(ctx context.Context, id string) (SyncStatus, error) {
	var st string
	err := r.db.QueryRowContext(ctx, `SELECT sync_status FROM transactions WHERE id = ?`, id).Scan(&st)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get sync status: %w", err)
	}
	return SyncStatus(st), nil
}

// RetryFailedSync puts transactions whose mirroring failed back in the
// pending state and reports how many were reset.
func (r *SQLiteRepository) RetryFailedSync(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE sync_status = ?`,
		string(SyncPending), string(SyncError))
	if err != nil {
		return 0, fmt.Errorf("retry failed sync: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("retry failed sync: %w", err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id string, st SyncStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, string(st), id)
	if err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	return requireOneRow(res, "transaction", id)
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

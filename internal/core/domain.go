package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

type (
	// Kind tells whether a transaction adds to or subtracts from the balance.
	Kind string

	// RecurringDefinition is a template from which dated transactions are
	// generated on a schedule.
	RecurringDefinition struct {
		ID            string
		UserID        string
		Name          string
		Kind          Kind
		Amount        Amount
		Category      string
		PaymentMethod string
		Memo          string
		Schedule      Schedule
		StartDate     Date
		EndDate       *Date // inclusive, nil means open-ended
		Enabled       bool
		// LastGeneratedDate is the latest due date already materialized.
		LastGeneratedDate *Date
		CreatedAt         time.Time
		UpdatedAt         time.Time
	}

	// RecurringPatch is a partial update. Nil fields are left unchanged;
	// ClearEndDate removes the end date.
	RecurringPatch struct {
		Name          *string
		Kind          *Kind
		Amount        *Amount
		Category      *string
		PaymentMethod *string
		Memo          *string
		Schedule      Schedule
		StartDate     *Date
		EndDate       *Date
		ClearEndDate  bool
		Enabled       *bool
	}

	// Transaction is a dated ledger entry.
	Transaction struct {
		ID            string
		UserID        string
		Date          Date
		Kind          Kind
		Amount        Amount
		Category      string
		PaymentMethod string
		Memo          string
		AutoGenerated bool
		RecurringID   string // empty for manual entries
		CreatedAt     time.Time
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid kind")
	ErrEmptyName       = errors.New("empty name")
	ErrEmptyCategory   = errors.New("empty category")
	ErrEmptyUser       = errors.New("empty user id")
	ErrEndBeforeStart  = errors.New("end date before start date")
	ErrMemoTooLong     = errors.New("memo too long (max 500 characters)")
	ErrNameTooLong     = errors.New("name too long (max 200 characters)")
	ErrMissingSchedule = fmt.Errorf("%w: missing schedule", ErrInvalidScheduleConfig)
)

// Store errors shared by every storage backend.
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a compare-and-set found a different stored value.
	ErrConflict = errors.New("conflict")
)

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
}

// Frequency returns the frequency of the definition's schedule.
func (r RecurringDefinition) Frequency() Frequency {
	if r.Schedule == nil {
		return ""
	}
	return r.Schedule.Frequency()
}

func (r RecurringDefinition) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if len(r.Name) > 200 {
		return ErrNameTooLong
	}
	if len(r.Memo) > 500 {
		return ErrMemoTooLong
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if r.Schedule == nil {
		return ErrMissingSchedule
	}
	if err := r.Schedule.validate(); err != nil {
		return err
	}
	if err := r.StartDate.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if r.EndDate != nil && r.EndDate.Before(r.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// Apply returns a copy of r with the patch applied. The result is not
// validated.
func (p RecurringPatch) Apply(r RecurringDefinition) RecurringDefinition {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Kind != nil {
		r.Kind = *p.Kind
	}
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.PaymentMethod != nil {
		r.PaymentMethod = *p.PaymentMethod
	}
	if p.Memo != nil {
		r.Memo = *p.Memo
	}
	if p.Schedule != nil {
		r.Schedule = p.Schedule
	}
	if p.StartDate != nil {
		r.StartDate = *p.StartDate
	}
	if p.ClearEndDate {
		r.EndDate = nil
	} else if p.EndDate != nil {
		end := *p.EndDate
		r.EndDate = &end
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// IsEmpty reports whether the patch changes nothing.
func (p RecurringPatch) IsEmpty() bool {
	return p == RecurringPatch{}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Memo) > 500 {
		return ErrMemoTooLong
	}
	return nil
}

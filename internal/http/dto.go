package http

import (
	"encoding/json"
	"fmt"
	"time"

	"registro/internal/core"
	"registro/internal/schedule"
)

type recurringRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Kind          string          `json:"kind" validate:"required,oneof=income expense"`
	Amount        json.Number     `json:"amount" validate:"required"`
	Category      string          `json:"category" validate:"required,max=100"`
	PaymentMethod string          `json:"paymentMethod" validate:"max=100"`
	Memo          string          `json:"memo" validate:"max=500"`
	Frequency     string          `json:"frequency" validate:"required,oneof=daily weekly monthly yearly custom"`
	Options       json.RawMessage `json:"options"`
	StartDate     string          `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string          `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Enabled       *bool           `json:"enabled"`
}

func (req recurringRequest) toDefinition(userID string) (core.RecurringDefinition, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	sched, err := core.ParseSchedule(core.Frequency(req.Frequency), req.Options)
	if err != nil {
		return core.RecurringDefinition{}, err
	}
	start, err := core.ParseDate(req.StartDate)
	if err != nil {
		return core.RecurringDefinition{}, err
	}

	def := core.RecurringDefinition{
		UserID:        userID,
		Name:          sanitizeInput(req.Name),
		Kind:          core.Kind(req.Kind),
		Amount:        amount,
		Category:      sanitizeInput(req.Category),
		PaymentMethod: sanitizeInput(req.PaymentMethod),
		Memo:          sanitizeInput(req.Memo),
		Schedule:      sched,
		StartDate:     start,
		Enabled:       req.Enabled == nil || *req.Enabled,
	}
	if req.EndDate != "" {
		end, err := core.ParseDate(req.EndDate)
		if err != nil {
			return core.RecurringDefinition{}, err
		}
		def.EndDate = &end
	}
	return def, nil
}

// recurringPatchRequest carries only the fields to change. An empty
// endDate removes the end date.
type recurringPatchRequest struct {
	Name          *string         `json:"name" validate:"omitempty,max=200"`
	Kind          *string         `json:"kind" validate:"omitempty,oneof=income expense"`
	Amount        *json.Number    `json:"amount"`
	Category      *string         `json:"category" validate:"omitempty,max=100"`
	PaymentMethod *string         `json:"paymentMethod" validate:"omitempty,max=100"`
	Memo          *string         `json:"memo" validate:"omitempty,max=500"`
	Frequency     *string         `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly custom"`
	Options       json.RawMessage `json:"options"`
	StartDate     *string         `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate       *string         `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Enabled       *bool           `json:"enabled"`
}

func (req recurringPatchRequest) toPatch() (core.RecurringPatch, error) {
	patch := core.RecurringPatch{
		Name:          sanitizePtr(req.Name),
		Category:      sanitizePtr(req.Category),
		PaymentMethod: sanitizePtr(req.PaymentMethod),
		Memo:          sanitizePtr(req.Memo),
		Enabled:       req.Enabled,
	}
	if req.Kind != nil {
		k := core.Kind(*req.Kind)
		patch.Kind = &k
	}
	if req.Amount != nil {
		a, err := parseAmount(*req.Amount)
		if err != nil {
			return core.RecurringPatch{}, err
		}
		patch.Amount = &a
	}
	switch {
	case req.Frequency != nil:
		s, err := core.ParseSchedule(core.Frequency(*req.Frequency), req.Options)
		if err != nil {
			return core.RecurringPatch{}, err
		}
		patch.Schedule = s
	case len(req.Options) > 0 && string(req.Options) != "null":
		return core.RecurringPatch{}, fmt.Errorf("%w: frequency is required when options are set", core.ErrInvalidScheduleConfig)
	}
	if req.StartDate != nil {
		d, err := core.ParseDate(*req.StartDate)
		if err != nil {
			return core.RecurringPatch{}, err
		}
		patch.StartDate = &d
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			patch.ClearEndDate = true
		} else {
			d, err := core.ParseDate(*req.EndDate)
			if err != nil {
				return core.RecurringPatch{}, err
			}
			patch.EndDate = &d
		}
	}
	return patch, nil
}

type transactionRequest struct {
	Date          string      `json:"date" validate:"required,datetime=2006-01-02"`
	Kind          string      `json:"kind" validate:"required,oneof=income expense"`
	Amount        json.Number `json:"amount" validate:"required"`
	Category      string      `json:"category" validate:"required,max=100"`
	PaymentMethod string      `json:"paymentMethod" validate:"max=100"`
	Memo          string      `json:"memo" validate:"max=500"`
}

func (req transactionRequest) toTransaction(userID string) (core.Transaction, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return core.Transaction{}, err
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		UserID:        userID,
		Date:          date,
		Kind:          core.Kind(req.Kind),
		Amount:        amount,
		Category:      sanitizeInput(req.Category),
		PaymentMethod: sanitizeInput(req.PaymentMethod),
		Memo:          sanitizeInput(req.Memo),
	}, nil
}

type generateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

type recurringResponse struct {
	ID                string          `json:"id"`
	UserID            string          `json:"userId"`
	Name              string          `json:"name"`
	Kind              core.Kind       `json:"kind"`
	Amount            string          `json:"amount"`
	Category          string          `json:"category"`
	PaymentMethod     string          `json:"paymentMethod,omitempty"`
	Memo              string          `json:"memo,omitempty"`
	Frequency         core.Frequency  `json:"frequency"`
	Options           json.RawMessage `json:"options"`
	StartDate         core.Date       `json:"startDate"`
	EndDate           *core.Date      `json:"endDate"`
	Enabled           bool            `json:"enabled"`
	LastGeneratedDate *core.Date      `json:"lastGeneratedDate"`
	NextDueDate       *core.Date      `json:"nextDueDate"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// newRecurringResponse renders def. NextDueDate is the first due date on or
// after today.
func newRecurringResponse(def core.RecurringDefinition, today core.Date) recurringResponse {
	opts, err := core.MarshalScheduleOptions(def.Schedule)
	if err != nil {
		opts = json.RawMessage("{}")
	}
	resp := recurringResponse{
		ID:                def.ID,
		UserID:            def.UserID,
		Name:              def.Name,
		Kind:              def.Kind,
		Amount:            def.Amount.String(),
		Category:          def.Category,
		PaymentMethod:     def.PaymentMethod,
		Memo:              def.Memo,
		Frequency:         def.Frequency(),
		Options:           opts,
		StartDate:         def.StartDate,
		EndDate:           def.EndDate,
		Enabled:           def.Enabled,
		LastGeneratedDate: def.LastGeneratedDate,
		CreatedAt:         def.CreatedAt,
		UpdatedAt:         def.UpdatedAt,
	}
	if next, ok := schedule.NextDueDate(def, today.AddDays(-1)); ok {
		resp.NextDueDate = &next
	}
	return resp
}

type transactionResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	Date          core.Date `json:"date"`
	Kind          core.Kind `json:"kind"`
	Amount        string    `json:"amount"`
	Category      string    `json:"category"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Memo          string    `json:"memo,omitempty"`
	AutoGenerated bool      `json:"autoGenerated"`
	RecurringID   string    `json:"recurringId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newTransactionResponse(tx core.Transaction) transactionResponse {
	return transactionResponse{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Date:          tx.Date,
		Kind:          tx.Kind,
		Amount:        tx.Amount.String(),
		Category:      tx.Category,
		PaymentMethod: tx.PaymentMethod,
		Memo:          tx.Memo,
		AutoGenerated: tx.AutoGenerated,
		RecurringID:   tx.RecurringID,
		CreatedAt:     tx.CreatedAt,
	}
}

// generateResponse reports a manual generation. MarkerAdvanced is false
// when the transaction was saved but the definition could not be updated.
type generateResponse struct {
	Transaction    transactionResponse `json:"transaction"`
	MarkerAdvanced bool                `json:"markerAdvanced"`
}

type upcomingItem struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Kind     core.Kind `json:"kind"`
	Amount   string    `json:"amount"`
	Category string    `json:"category"`
}

type upcomingDayResponse struct {
	Date  core.Date      `json:"date"`
	Items []upcomingItem `json:"items"`
}

func newUpcomingResponse(days []schedule.UpcomingDay) []upcomingDayResponse {
	out := make([]upcomingDayResponse, 0, len(days))
	for _, day := range days {
		items := make([]upcomingItem, 0, len(day.Definitions))
		for _, def := range day.Definitions {
			items = append(items, upcomingItem{
				ID:       def.ID,
				Name:     def.Name,
				Kind:     def.Kind,
				Amount:   def.Amount.String(),
				Category: def.Category,
			})
		}
		out = append(out, upcomingDayResponse{Date: day.Date, Items: items})
	}
	return out
}

type dueDatesResponse struct {
	From  core.Date   `json:"from"`
	To    core.Date   `json:"to"`
	Dates []core.Date `json:"dates"`
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"registro/internal/cache"
	"registro/internal/core"
	"registro/internal/schedule"
	"registro/internal/services"
	"registro/internal/storage/memory"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	store := memory.New()
	ledger := services.NewLedgerService(store, nil)
	upcoming := cache.NewLRUCache[[]schedule.UpcomingDay](10, time.Minute)
	recurring := services.NewRecurringService(store, ledger, upcoming)

	srv := NewServer(":0", recurring, ledger, append([]Option{withClock(func() time.Time { return testNow })}, opts...)...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func createRecurring(t *testing.T, srv *Server, body string) recurringResponse {
	t.Helper()
	rr := do(t, srv, http.MethodPost, "/users/u1/recurring", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body)
	}
	return decode[recurringResponse](t, rr)
}

const rentJSON = `{"name":"Rent","kind":"expense","amount":"950.00","category":"Housing",
	"frequency":"monthly","options":{"dayOfMonth":31},"startDate":"2024-01-31"}`

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t,
		WithReadinessCheck("storage", pingFunc(func(context.Context) error { return nil })),
		WithReadinessCheck("broker", pingFunc(func(context.Context) error { return errors.New("down") })),
	)

	if rr := do(t, srv, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rr.Code)
	}

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rr)
	if body.Checks["storage"] != "ok" || !strings.HasPrefix(body.Checks["broker"], "failed") {
		t.Errorf("checks = %v", body.Checks)
	}
}

func TestRecurringLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/users/u1/recurring", rentJSON)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body)
	}
	created := decode[recurringResponse](t, rr)
	if rr.Header().Get("Location") != "/users/u1/recurring/"+created.ID {
		t.Errorf("Location = %q", rr.Header().Get("Location"))
	}
	if created.NextDueDate == nil || created.NextDueDate.String() != "2024-01-31" {
		t.Errorf("nextDueDate = %v, want 2024-01-31", created.NextDueDate)
	}
	if created.LastGeneratedDate != nil || !created.Enabled || created.Amount != "950.00" {
		t.Errorf("created = %+v", created)
	}

	base := "/users/u1/recurring/" + created.ID

	rr = do(t, srv, http.MethodGet, base+"/due-dates?from=2024-01-01&to=2024-04-30", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("due-dates status = %d, body = %s", rr.Code, rr.Body)
	}
	due := decode[dueDatesResponse](t, rr)
	var got []string
	for _, d := range due.Dates {
		got = append(got, d.String())
	}
	if want := "2024-01-31,2024-02-29,2024-03-31,2024-04-30"; strings.Join(got, ",") != want {
		t.Errorf("due dates = %v, want %s", got, want)
	}

	rr = do(t, srv, http.MethodPatch, base, `{"name":"Flat rent","endDate":"2024-12-31"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rr.Code, rr.Body)
	}
	if updated := decode[recurringResponse](t, rr); updated.Name != "Flat rent" || updated.EndDate == nil {
		t.Errorf("updated = %+v", updated)
	}

	rr = do(t, srv, http.MethodPatch, base, `{"endDate":""}`)
	if updated := decode[recurringResponse](t, rr); updated.EndDate != nil {
		t.Errorf("endDate not cleared: %v", updated.EndDate)
	}

	rr = do(t, srv, http.MethodPost, base+"/toggle", "")
	if toggled := decode[recurringResponse](t, rr); toggled.Enabled {
		t.Error("toggle left definition enabled")
	}

	rr = do(t, srv, http.MethodGet, "/users/u1/recurring?enabled=true", "")
	if list := decode[[]recurringResponse](t, rr); len(list) != 0 {
		t.Errorf("enabled list = %d items, want 0", len(list))
	}

	if rr := do(t, srv, http.MethodGet, "/users/u2/recurring/"+created.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("other user get status = %d, want 404", rr.Code)
	}

	if rr := do(t, srv, http.MethodDelete, base, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, base, ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestCreateRecurringValidation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantText string
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest, "bad request"},
		{"unknown field", `{"name":"x","colour":"red"}`, http.StatusBadRequest, "colour"},
		{"missing name", `{"kind":"expense","amount":"1","category":"c","frequency":"daily","startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "name"},
		{"bad kind", `{"name":"n","kind":"gift","amount":"1","category":"c","frequency":"daily","startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "kind"},
		{"bad frequency", `{"name":"n","kind":"income","amount":"1","category":"c","frequency":"hourly","startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "frequency"},
		{"bad date format", `{"name":"n","kind":"income","amount":"1","category":"c","frequency":"daily","startDate":"01/02/2024"}`,
			http.StatusUnprocessableEntity, "startDate"},
		{"day of month out of range", `{"name":"n","kind":"income","amount":"1","category":"c","frequency":"monthly","options":{"dayOfMonth":40},"startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "invalid schedule config"},
		{"options of another frequency", `{"name":"n","kind":"income","amount":"1","category":"c","frequency":"daily","options":{"dayOfWeek":1},"startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "invalid schedule config"},
		{"negative amount", `{"name":"n","kind":"income","amount":-5,"category":"c","frequency":"daily","startDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "invalid amount"},
		{"end before start", `{"name":"n","kind":"income","amount":"1","category":"c","frequency":"daily","startDate":"2024-02-01","endDate":"2024-01-01"}`,
			http.StatusUnprocessableEntity, "end date before start date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, "/users/u1/recurring", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantCode, rr.Body)
			}
			if body := decode[errorBody](t, rr); !strings.Contains(body.Error, tt.wantText) {
				t.Errorf("error = %q, want it to mention %q", body.Error, tt.wantText)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	srv := newTestServer(t)
	def := createRecurring(t, srv, rentJSON)
	path := "/users/u1/recurring/" + def.ID + "/generate"

	rr := do(t, srv, http.MethodPost, path, `{"date":"2024-02-15"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body = %s", rr.Code, rr.Body)
	}
	resp := decode[generateResponse](t, rr)
	if !resp.MarkerAdvanced || !resp.Transaction.AutoGenerated || resp.Transaction.RecurringID != def.ID {
		t.Errorf("generate response = %+v", resp)
	}
	if resp.Transaction.Date.String() != "2024-02-15" || resp.Transaction.Amount != "950.00" {
		t.Errorf("transaction = %+v", resp.Transaction)
	}

	if rr := do(t, srv, http.MethodPost, path, `{"date":"2024-02-15"}`); rr.Code != http.StatusConflict {
		t.Errorf("second generate status = %d, want 409", rr.Code)
	}
	if rr := do(t, srv, http.MethodPost, path, `{}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("generate without date status = %d, want 422", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/users/u1/transactions?from=2024-02-01&to=2024-02-29", "")
	if txs := decode[[]transactionResponse](t, rr); len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}

	rr = do(t, srv, http.MethodGet, "/users/u1/recurring/"+def.ID, "")
	if got := decode[recurringResponse](t, rr); got.LastGeneratedDate == nil || got.LastGeneratedDate.String() != "2024-02-15" {
		t.Errorf("lastGeneratedDate = %v, want 2024-02-15", got.LastGeneratedDate)
	}
}

func TestUpcoming(t *testing.T) {
	srv := newTestServer(t)
	createRecurring(t, srv, `{"name":"Gym","kind":"expense","amount":"12.5","category":"Sport",
		"frequency":"weekly","startDate":"2024-01-10"}`)
	createRecurring(t, srv, `{"name":"Salary","kind":"income","amount":"2000","category":"Work",
		"frequency":"monthly","options":{"dayOfMonth":17},"startDate":"2024-01-01"}`)

	rr := do(t, srv, http.MethodGet, "/users/u1/upcoming?days=14", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	days := decode[[]upcomingDayResponse](t, rr)

	var got []string
	for _, day := range days {
		got = append(got, fmt.Sprintf("%s:%d", day.Date, len(day.Items)))
	}
	if want := "2024-01-10:1,2024-01-17:2,2024-01-24:1"; strings.Join(got, ",") != want {
		t.Errorf("upcoming = %v, want %s", got, want)
	}

	for _, q := range []string{"days=1000", "days=-1", "days=abc", "from=2024-13-01"} {
		if rr := do(t, srv, http.MethodGet, "/users/u1/upcoming?"+q, ""); rr.Code < 400 || rr.Code >= 500 {
			t.Errorf("upcoming?%s status = %d, want 4xx", q, rr.Code)
		}
	}
}

func TestCalendarExport(t *testing.T) {
	srv := newTestServer(t)
	createRecurring(t, srv, `{"name":"Gym","kind":"expense","amount":"12.5","category":"Sport",
		"frequency":"weekly","startDate":"2024-01-10"}`)

	rr := do(t, srv, http.MethodGet, "/users/u1/upcoming.ics?days=14", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	cal, err := ical.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode()
	if err != nil {
		t.Fatalf("decode calendar: %v", err)
	}
	if events := cal.Events(); len(events) != 3 {
		t.Errorf("events = %d, want 3", len(events))
	}

	rr = do(t, srv, http.MethodGet, "/users/u1/recurring.ics", "")
	cal, err = ical.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode()
	if err != nil {
		t.Fatalf("decode calendar: %v", err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	rule := events[0].Props.Get(ical.PropRecurrenceRule)
	if rule == nil || !strings.Contains(rule.Value, "FREQ=WEEKLY") {
		t.Errorf("RRULE = %v", rule)
	}
}

func TestTransactions(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/users/u1/transactions",
		`{"date":"2024-01-05","kind":"expense","amount":"3,456","category":"Food","memo":"lunch"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("comma amount in JSON status = %d, want 400", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/users/u1/transactions",
		`{"date":"2024-01-05","kind":"expense","amount":"3.456","category":"Food","memo":"lunch"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body)
	}
	tx := decode[transactionResponse](t, rr)
	if tx.Amount != "3.46" || tx.AutoGenerated {
		t.Errorf("transaction = %+v", tx)
	}

	if rr := do(t, srv, http.MethodPost, "/users/u1/transactions",
		`{"date":"2024-01-05","kind":"refund","amount":"1","category":"Food"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad kind status = %d, want 422", rr.Code)
	}

	rr = do(t, srv, http.MethodGet, "/users/u1/transactions", "")
	if txs := decode[[]transactionResponse](t, rr); len(txs) != 1 {
		t.Errorf("default window = %d transactions, want 1", len(txs))
	}
	if rr := do(t, srv, http.MethodGet, "/users/u1/transactions?from=2024-02-01&to=2024-01-01", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", rr.Code)
	}

	if rr := do(t, srv, http.MethodDelete, "/users/u1/transactions/"+tx.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := do(t, srv, http.MethodDelete, "/users/u1/transactions/"+tx.ID, ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(1))

	createRecurring(t, srv, rentJSON)
	if rr := do(t, srv, http.MethodPost, "/users/u1/recurring", rentJSON); rr.Code != http.StatusTooManyRequests {
		t.Errorf("second write status = %d, want 429", rr.Code)
	}
	for range 3 {
		if rr := do(t, srv, http.MethodGet, "/users/u1/recurring", ""); rr.Code != http.StatusOK {
			t.Errorf("read status = %d, want 200", rr.Code)
		}
	}
}

func TestRequestIDInErrors(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodGet, "/users/u1/recurring/missing", "")
	body := decode[errorBody](t, rr)
	if body.RequestID == "" || body.RequestID != rr.Header().Get("X-Request-ID") {
		t.Errorf("requestId = %q, header = %q", body.RequestID, rr.Header().Get("X-Request-ID"))
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", core.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", services.ErrAlreadyGenerated), http.StatusConflict},
		{services.ErrConcurrentGeneration, http.StatusConflict},
		{fmt.Errorf("%w: %w", services.ErrInvalidInput, core.ErrEmptyName), http.StatusUnprocessableEntity},
		{core.ErrInvalidScheduleConfig, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: nope", errBadRequest), http.StatusBadRequest},
		{&fieldError{msg: "name: failed required"}, http.StatusUnprocessableEntity},
		{services.ErrLedgerWrite, http.StatusInternalServerError},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got, _ := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

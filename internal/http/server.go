package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"registro/internal/core"
	"registro/internal/log"
	"registro/internal/middleware/ratelimit"
	"registro/internal/middleware/trace"
	"registro/internal/schedule"
	"registro/internal/services"
)

// RecurringService is the recurring definition API the handlers call.
type RecurringService interface {
	Create(ctx context.Context, def core.RecurringDefinition) (core.RecurringDefinition, error)
	Get(ctx context.Context, userID, id string) (core.RecurringDefinition, error)
	List(ctx context.Context, userID string, enabledOnly bool) ([]core.RecurringDefinition, error)
	Update(ctx context.Context, userID, id string, patch core.RecurringPatch) (core.RecurringDefinition, error)
	Delete(ctx context.Context, userID, id string) error
	Toggle(ctx context.Context, userID, id string) (core.RecurringDefinition, error)
	Generate(ctx context.Context, userID, id string, date core.Date) (core.Transaction, error)
	DueDates(ctx context.Context, userID, id string, from, to core.Date) ([]core.Date, error)
	Upcoming(ctx context.Context, userID string, from core.Date, days int) ([]schedule.UpcomingDay, error)
}

// LedgerService is the transaction API the handlers call.
type LedgerService interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
	ListTransactions(ctx context.Context, userID string, from, to core.Date) ([]core.Transaction, error)
}

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const (
	defaultUpcomingDays = 30
	defaultListDays     = 31
)

type Server struct {
	http.Server
	recurring   RecurringService
	ledger      LedgerService
	validate    *validator.Validate
	logger      *log.Logger
	structured  *log.StructuredLogger
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter
	readiness   []namedPinger
	loc         *time.Location
	now         func() time.Time
	startedAt   time.Time

	shutdownOnce sync.Once
}

type namedPinger struct {
	name string
	p    Pinger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger.WithComponent(log.ComponentHTTP) }
}

// WithRateLimit limits mutating requests per client per minute. Zero
// disables the limiter.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: perMinute})
		}
	}
}

// WithReadinessCheck adds a dependency checked by /readyz.
func WithReadinessCheck(name string, p Pinger) Option {
	return func(s *Server) { s.readiness = append(s.readiness, namedPinger{name: name, p: p}) }
}

// WithLocation sets the timezone that decides which day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.loc = loc }
}

func withClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, recurring RecurringService, ledger LedgerService, opts ...Option) *Server {
	s := &Server{
		recurring: recurring,
		ledger:    ledger,
		validate:  NewValidator(),
		logger:    log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP),
		tracer:    trace.NewMiddleware(clientIP),
		loc:       time.UTC,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.structured = log.NewStructuredLogger(s.logger)
	s.startedAt = s.now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /users/{userID}/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /users/{userID}/recurring", s.handleCreateRecurring)
	mux.HandleFunc("GET /users/{userID}/recurring/{id}", s.handleGetRecurring)
	mux.HandleFunc("PATCH /users/{userID}/recurring/{id}", s.handleUpdateRecurring)
	mux.HandleFunc("DELETE /users/{userID}/recurring/{id}", s.handleDeleteRecurring)
	mux.HandleFunc("POST /users/{userID}/recurring/{id}/toggle", s.handleToggleRecurring)
	mux.HandleFunc("POST /users/{userID}/recurring/{id}/generate", s.handleGenerate)
	mux.HandleFunc("GET /users/{userID}/recurring/{id}/due-dates", s.handleDueDates)
	mux.HandleFunc("GET /users/{userID}/upcoming", s.handleUpcoming)

	mux.HandleFunc("GET /users/{userID}/upcoming.ics", s.handleUpcomingCalendar)
	mux.HandleFunc("GET /users/{userID}/recurring.ics", s.handleRecurringCalendar)

	mux.HandleFunc("GET /users/{userID}/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /users/{userID}/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /users/{userID}/transactions/{id}", s.handleDeleteTransaction)

	var handler http.Handler = mux
	handler = s.limitWrites(handler)
	handler = log.RequestIDMiddleware(trace.GetRequestID)(handler)
	handler = s.tracer.Middleware(handler)
	handler = log.Middleware(s.logger)(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// limitWrites applies the rate limiter to every method except GET and HEAD.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}
	limited := s.rateLimiter.Middleware(clientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}

// Shutdown stops the rate limiter and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) today() core.Date {
	return core.DateOf(s.now().In(s.loc))
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
			log.NewFields().WithRequestID(trace.GetRequestID(r.Context())))
	}
	NewResponse().
		Status(status).
		JSON(errorBody{Error: msg, RequestID: trace.GetRequestID(r.Context())}).
		Write(w)
}

var validationErrors = []error{
	services.ErrInvalidInput,
	core.ErrInvalidScheduleConfig,
	core.ErrInvalidAmount,
	core.ErrInvalidKind,
	core.ErrInvalidDate,
	core.ErrEmptyName,
	core.ErrEmptyCategory,
	core.ErrEmptyUser,
	core.ErrEndBeforeStart,
	core.ErrMemoTooLong,
	core.ErrNameTooLong,
}

func statusFor(err error) (int, string) {
	var fe *fieldError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity, fe.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, services.ErrAlreadyGenerated),
		errors.Is(err, services.ErrConcurrentGeneration),
		errors.Is(err, core.ErrConflict):
		return http.StatusConflict, err.Error()
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, err.Error()
		}
	}
	return http.StatusInternalServerError, "internal error"
}

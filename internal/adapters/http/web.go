package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/http/perf"
	attemptStore "gymroster/internal/adapters/storage/attempt"
	courserowStore "gymroster/internal/adapters/storage/courserow"
	"gymroster/internal/adapters/storage/documents"
	memberStore "gymroster/internal/adapters/storage/member"
	outboxStore "gymroster/internal/adapters/storage/outbox"
	totalsStore "gymroster/internal/adapters/storage/totals"
	"gymroster/internal/application/orchestrators"
	"gymroster/internal/domain/account"
	"gymroster/internal/domain/month"
)

// SessionCookieName is the cookie carrying admin and member sessions.
const SessionCookieName = "gymroster_session"

// Stores holds all storage dependencies.
type Stores struct {
	MemberStore  memberStore.Store
	RowStore     courserowStore.Store
	TotalsStore  totalsStore.Store
	AttemptStore attemptStore.Store
	OutboxStore  outboxStore.Store
	Documents    documents.Store
}

// Options configures the roster store's behaviour.
type Options struct {
	Admin account.Admin

	// SeedCourse is the course new registrations are enrolled in.
	SeedCourse string

	// Months is the server month sequence, first month first. Saving the
	// first month propagates identities to the rest.
	Months []string

	// RateLimitPerSecond controls the per-IP rate limit. Zero means 10.
	RateLimitPerSecond int

	// Executors deliver outbox entries by action type. Without one, a
	// manual retry fails the entry again.
	Executors map[string]orchestrators.ActionExecutor
}

// Server is the HTTP+JSON roster store.
type Server struct {
	stores     *Stores
	opts       Options
	sessions   *middleware.SessionStore
	collector  *perf.Collector
	metrics    *Metrics
	validate   *validator.Validate
	now        func() time.Time
	generateID func() string
	outbox     *orchestrators.OutboxProcessor
}

// NewServer wires the stores behind the JSON API.
// PRE: every store in s is set
// POST: the server owns a fresh session store bound to SessionCookieName
func NewServer(s *Stores, opts Options, collector *perf.Collector, metrics *Metrics) *Server {
	if len(opts.Months) == 0 {
		opts.Months = month.Keys(month.Sequence(month.Default, month.ServerYears))
	}
	if opts.SeedCourse == "" {
		opts.SeedCourse = "BodyBuilding"
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	return &Server{
		stores:     s,
		opts:       opts,
		sessions:   middleware.NewSessionStore(SessionCookieName),
		collector:  collector,
		metrics:    metrics,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        time.Now,
		generateID: uuid.NewString,
		outbox:     orchestrators.NewOutboxProcessor(s.OutboxStore, opts.Executors),
	}
}

// Outbox returns the processor behind the admin outbox endpoints, for the
// background worker to share.
func (s *Server) Outbox() *orchestrators.OutboxProcessor {
	return s.outbox
}

// Sessions exposes the session store so the caller can sweep it.
func (s *Server) Sessions() *middleware.SessionStore {
	return s.sessions
}

// Handler returns the routed and wrapped API. The rate limiter's janitor
// runs until stop is closed.
func (s *Server) Handler(stop <-chan struct{}) http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	limiter := middleware.NewRateLimiter(s.opts.RateLimitPerSecond, time.Second, stop)

	// Timing wraps the mux directly so requests are labelled by pattern.
	return middleware.Chain(mux,
		middleware.Timing(s.collector),
		middleware.SecurityHeaders,
		middleware.Auth(s.sessions),
		middleware.RateLimit(limiter),
	)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	admin := middleware.RequireRole(account.RoleAdmin)

	mux.HandleFunc("GET /healthz", handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("POST /admin/login", s.handleAdminLogin)
	mux.HandleFunc("POST /admin/logout", s.handleAdminLogout)
	mux.Handle("GET /admin/users", admin(http.HandlerFunc(s.handleAdminUsers)))
	mux.Handle("GET /admin/course-data/{course}", admin(http.HandlerFunc(s.handleGetCourseData)))
	mux.Handle("POST /admin/course-data/{course}", admin(http.HandlerFunc(s.handleSaveCourseData)))
	mux.Handle("POST /admin/course-data-single/{course}", admin(http.HandlerFunc(s.handleCreateSingleRow)))
	mux.Handle("POST /admin/upload/{user_id}", admin(http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /admin/course-totals/{course}", admin(http.HandlerFunc(s.handleGetTotals)))
	mux.Handle("POST /admin/course-totals/{course}", admin(http.HandlerFunc(s.handleSaveTotals)))
	mux.Handle("POST /admin/send-payment-reminder", admin(http.HandlerFunc(s.handlePaymentReminder)))
	mux.Handle("GET /admin/outbox", admin(http.HandlerFunc(s.handleListOutbox)))
	mux.Handle("POST /admin/outbox/{id}/retry", admin(http.HandlerFunc(s.handleRetryOutbox)))
	mux.Handle("POST /admin/outbox/{id}/abandon", admin(http.HandlerFunc(s.handleAbandonOutbox)))

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleMemberLogin)
	mux.HandleFunc("POST /logout", s.handleMemberLogout)
	mux.HandleFunc("GET /me", s.handleMe)
	mux.HandleFunc("GET /scheda", s.handleScheda)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

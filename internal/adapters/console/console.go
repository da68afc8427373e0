// Package console is the admin roster console: a server-rendered HTML UI
// over one reconciliation controller per admin session.
package console

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/http/perf"
	"gymroster/internal/adapters/remote"
	"gymroster/internal/adapters/storage/draft"
	"gymroster/internal/application/drafts"
	"gymroster/internal/application/reconcile"
	"gymroster/internal/domain/account"
	"gymroster/internal/domain/month"
)

// SessionCookieName is the console's own session cookie.
const SessionCookieName = "gymroster_console"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options configures the console.
type Options struct {
	// RemoteURL is the base URL of the roster store.
	RemoteURL string
	// RemoteTimeout bounds each call to the store. Zero means remote.DefaultTimeout.
	RemoteTimeout time.Duration
	// Courses lists the courses on the home page, in order.
	Courses []string
	// DocumentCourses are the courses whose rows carry a document upload.
	DocumentCourses []string
	// Months is the month sequence offered by the month selector.
	Months []month.Month
	// CSRFKey is the 32-byte gorilla/csrf authentication key.
	CSRFKey []byte
	// TrustedOrigins are extra hosts allowed to post forms.
	TrustedOrigins []string
}

// workspace is everything one admin session owns.
type workspace struct {
	client *remote.Client
	ctrl   *reconcile.Controller

	mu      sync.Mutex
	flashes []flash
}

// flash is a one-shot notice shown on the next page render.
type flash struct {
	Error bool
	Text  string
}

func (ws *workspace) addFlash(isErr bool, text string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.flashes = append(ws.flashes, flash{Error: isErr, Text: text})
}

func (ws *workspace) takeFlashes() []flash {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := ws.flashes
	ws.flashes = nil
	return out
}

// Server serves the console UI.
type Server struct {
	opts      Options
	drafts    draft.Store
	sessions  *middleware.SessionStore
	collector *perf.Collector
	pages     map[string]*template.Template

	mu         sync.Mutex
	workspaces map[string]*workspace // by session ID

	// newClient builds the store client of a new session.
	newClient func() *remote.Client
}

// NewServer creates the console. drafts is the raw draft store shared by
// every session; each session sees only its own drafts.
// PRE: len(opts.CSRFKey) == 32
func NewServer(opts Options, raw draft.Store, collector *perf.Collector) *Server {
	if len(opts.Months) == 0 {
		opts.Months = month.Sequence(month.Default, month.ConsoleYears)
	}
	s := &Server{
		opts:       opts,
		drafts:     raw,
		sessions:   middleware.NewSessionStore(SessionCookieName),
		collector:  collector,
		pages:      parsePages(),
		workspaces: make(map[string]*workspace),
	}
	s.newClient = func() *remote.Client {
		hc := remote.DefaultHTTPClient()
		if opts.RemoteTimeout > 0 {
			hc.Timeout = opts.RemoteTimeout
		}
		return remote.New(opts.RemoteURL, hc)
	}
	return s
}

var pageNames = []string{"login.html", "courses.html", "course.html"}

func parsePages() map[string]*template.Template {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		pages[name] = template.Must(template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return pages
}

// Handler returns the console's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /static/", http.FileServerFS(staticFS))

	mux.Handle("GET /{$}", s.withWorkspace(s.handleCourses))
	mux.Handle("GET /courses/{course}", s.withWorkspace(s.handleCourse))
	mux.Handle("POST /courses/{course}/edit", s.withWorkspace(s.handleEdit))
	mux.Handle("POST /courses/{course}/month", s.withWorkspace(s.handleChangeMonth))
	mux.Handle("POST /courses/{course}/rows", s.withWorkspace(s.handleAddRow))
	mux.Handle("POST /courses/{course}/rows/{index}/delete", s.withWorkspace(s.handleDeleteRow))
	mux.Handle("POST /courses/{course}/rows/{index}/upload", s.withWorkspace(s.handleUpload))
	mux.Handle("POST /courses/{course}/save", s.withWorkspace(s.handleSave))
	mux.Handle("POST /courses/{course}/totals/cash", s.withWorkspace(s.handleMonthlyTotal))
	mux.Handle("POST /courses/{course}/totals/instructor", s.withWorkspace(s.handleInstructorAmount))
	mux.Handle("POST /courses/{course}/totals/instructor/show", s.withWorkspace(s.handleShowInstructorTotal))
	mux.Handle("POST /courses/{course}/reminders", s.withWorkspace(s.handleReminders))
	mux.Handle("GET /debug/perf", s.withWorkspace(s.handlePerf))

	return middleware.Chain(mux,
		middleware.Timing(s.collector),
		middleware.SecurityHeaders,
		middleware.CSRF(s.opts.CSRFKey, s.opts.TrustedOrigins...),
		middleware.Auth(s.sessions),
	)
}

type workspaceHandler func(w http.ResponseWriter, r *http.Request, ws *workspace)

// withWorkspace resolves the session's workspace or sends the browser to /login.
func (s *Server) withWorkspace(h workspaceHandler) http.Handler {
	return middleware.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := middleware.GetSessionFromContext(r.Context())
		s.mu.Lock()
		ws, ok := s.workspaces[sess.ID]
		s.mu.Unlock()
		if !ok || sess.Role != account.RoleAdmin {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		h(w, r, ws)
	}))
}

// openWorkspace logs client in as the session's store client and binds a
// controller and the session's drafts to it.
func (s *Server) openWorkspace(sess middleware.Session, client *remote.Client) *workspace {
	ws := &workspace{
		client: client,
		ctrl: reconcile.New(client, drafts.New(s.drafts, sess.ID), reconcile.Options{
			Months:          s.opts.Months,
			DocumentCourses: s.opts.DocumentCourses,
		}),
	}
	s.mu.Lock()
	s.workspaces[sess.ID] = ws
	s.mu.Unlock()
	return ws
}

// closeWorkspace ends the session's view, purges its drafts and logs the
// store client out. Unknown sessions are ignored.
func (s *Server) closeWorkspace(ctx context.Context, sessionID string) {
	s.mu.Lock()
	ws, ok := s.workspaces[sessionID]
	delete(s.workspaces, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := ws.ctrl.Shutdown(ctx); err != nil {
		slog.Warn("draft_purge_failed", "session_id", sessionID, "error", err)
	}
	if err := ws.client.AdminLogout(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("store_logout_failed", "session_id", sessionID, "error", err)
	}
}

// SweepExpired ends every expired session and returns how many ended.
func (s *Server) SweepExpired(ctx context.Context) int {
	expired := s.sessions.Sweep()
	for _, sess := range expired {
		s.closeWorkspace(ctx, sess.ID)
		slog.Info("auth_event", "event", "session_expired", "subject", sess.Subject)
	}
	return len(expired)
}

// RunSweeper sweeps expired sessions every interval until stop is closed.
func (s *Server) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SweepExpired(context.Background())
		}
	}
}

// Shutdown ends every open session.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.closeWorkspace(ctx, id)
	}
}

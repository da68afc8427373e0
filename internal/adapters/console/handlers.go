package console

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/adapters/remote"
	"gymroster/internal/domain/account"
)

// render executes a page inside the layout. The CSRF field and the
// workspace flashes are added to data.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any, ws *workspace) {
	tpl, ok := s.pages[name]
	if !ok {
		http.Error(w, "Template error: unknown page "+name, http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["CSRFField"] = csrf.TemplateField(r)
	_, data["LoggedIn"] = middleware.GetSessionFromContext(r.Context())
	if ws != nil {
		data["Flashes"] = ws.takeFlashes()
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		slog.Error("render_failed", "page", name, "error", err)
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok && s.hasWorkspace(sess.ID) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", nil, nil)
}

func (s *Server) hasWorkspace(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workspaces[sessionID]
	return ok
}

// handleLogin checks the credentials against the roster store. The
// store's own session then lives in the new workspace's client.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	client := s.newClient()
	if err := client.AdminLogin(r.Context(), username, password); err != nil {
		status := http.StatusBadGateway
		var apiErr *remote.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		} else {
			slog.Warn("store_login_failed", "error", err)
		}
		slog.Info("auth_event", "event", "console_login_failed", "username", username, "ip", middleware.ClientIP(r))
		s.render(w, r, status, "login.html", map[string]any{
			"Username": username,
			"Message":  remote.UserMessage(err, "Errore connessione!"),
		}, nil)
		return
	}

	token, sess, err := s.sessions.Create(username, "", account.RoleAdmin)
	if err != nil {
		slog.Error("session_create_failed", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	ws := s.openWorkspace(sess, client)
	ws.addFlash(false, "Login admin riuscito")
	s.sessions.SetSessionCookie(w, token)
	slog.Info("auth_event", "event", "console_login", "username", username, "ip", middleware.ClientIP(r))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := s.sessions.TokenFromRequest(r); token != "" {
		if sess, ok := s.sessions.Delete(token); ok {
			s.closeWorkspace(r.Context(), sess.ID)
			slog.Info("auth_event", "event", "console_logout", "username", sess.Subject)
		}
	}
	s.sessions.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// courseLink is one entry of the course list.
type courseLink struct {
	Name string
	URL  template.URL
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request, ws *workspace) {
	links := make([]courseLink, len(s.opts.Courses))
	for i, c := range s.opts.Courses {
		links[i] = courseLink{Name: c, URL: template.URL(coursePath(c))}
	}
	s.render(w, r, http.StatusOK, "courses.html", map[string]any{
		"Courses": links,
		"Month":   ws.ctrl.Month(),
	}, ws)
}

// handlePerf reports recent request and statement latencies as JSON.
func (s *Server) handlePerf(w http.ResponseWriter, r *http.Request, ws *workspace) {
	if s.collector == nil {
		http.Error(w, "perf collection disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.collector.Snapshot()); err != nil {
		slog.Error("perf_encode_failed", "error", err)
	}
}

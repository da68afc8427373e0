package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"gymroster/internal/adapters/http/middleware"
	"gymroster/internal/application/orchestrators"
	"gymroster/internal/domain/account"
	"gymroster/internal/domain/attempt"
	"gymroster/internal/domain/member"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// internalError logs the real error and returns a generic message to the client.
// This prevents leaking internal details per OWASP A05.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "Errore interno del server")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"status": "error", "message": message})
}

func writeOK(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": message})
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func blockedMessage(remaining int) string {
	return fmt.Sprintf("Superato il numero di tentativi: attendi %d secondi", remaining)
}

// loginFailed answers a failed login. It returns false when err is nil.
func (s *Server) loginFailed(w http.ResponseWriter, scope string, err error, wrongCredentials string) bool {
	if err == nil {
		s.metrics.login(scope, "success")
		return false
	}
	var blocked *orchestrators.BlockedError
	switch {
	case errors.As(err, &blocked):
		s.metrics.login(scope, "blocked")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":            "error",
			"message":           blockedMessage(blocked.RemainingSeconds),
			"remaining_seconds": blocked.RemainingSeconds,
		})
	case errors.Is(err, orchestrators.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Compila tutti i campi")
	case errors.Is(err, orchestrators.ErrInvalidCredentials):
		s.metrics.login(scope, "failure")
		writeError(w, http.StatusUnauthorized, wrongCredentials)
	default:
		internalError(w, err)
	}
	return true
}

func (s *Server) guardDeps() orchestrators.LoginGuardDeps {
	return orchestrators.LoginGuardDeps{AttemptStore: s.stores.AttemptStore, Now: s.now}
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Richiesta non valida")
		return
	}
	err := orchestrators.ExecuteAdminLogin(r.Context(), orchestrators.AdminLoginInput{
		Username: req.Username,
		Password: req.Password,
		IP:       middleware.ClientIP(r),
	}, orchestrators.AdminLoginDeps{LoginGuardDeps: s.guardDeps(), Admin: s.opts.Admin})
	if s.loginFailed(w, attempt.ScopeAdmin, err, "Username o Password errate") {
		return
	}

	token, _, err := s.sessions.Create(s.opts.Admin.Username, "", account.RoleAdmin)
	if err != nil {
		internalError(w, err)
		return
	}
	s.sessions.SetSessionCookie(w, token)
	writeOK(w, "Login admin riuscito")
}

// endSession deletes the caller's session when it has the given role.
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, role string) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok || sess.Role != role {
		return
	}
	if token := s.sessions.TokenFromRequest(r); token != "" {
		s.sessions.Delete(token)
	}
	s.sessions.ClearSessionCookie(w)
	slog.Info("auth_event", "event", "logout", "role", role, "subject", sess.Subject,
		"session_age", s.now().Sub(sess.CreatedAt).Round(time.Second))
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession(w, r, account.RoleAdmin)
	writeOK(w, "Logout admin effettuato")
}

type registerRequest struct {
	FullName string `json:"nome_cognome" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Richiesta non valida")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, registerValidationMessage(err))
		return
	}

	m, err := orchestrators.ExecuteRegisterMember(r.Context(), orchestrators.RegisterMemberInput{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	}, orchestrators.RegisterMemberDeps{
		MemberStore: s.stores.MemberStore,
		RowStore:    s.stores.RowStore,
		SeedCourse:  s.opts.SeedCourse,
		Months:      s.opts.Months,
		GenerateID:  s.generateID,
		Now:         s.now,
	})
	switch {
	case errors.Is(err, orchestrators.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Compila tutti i campi")
		return
	case errors.Is(err, orchestrators.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, "Email già esistente")
		return
	case errors.Is(err, member.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, "La password deve avere almeno 8 caratteri")
		return
	case err != nil:
		internalError(w, err)
		return
	}
	s.metrics.memberRegistered()
	slog.Info("auth_event", "event", "member_registered", "member_id", m.ID)
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "message": "Registrazione completata"})
}

// registerValidationMessage maps the first failed rule to a user message.
func registerValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				return "Compila tutti i campi"
			case "email":
				return "Email non valida"
			}
		}
	}
	return "Dati non validi"
}

type memberLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleMemberLogin(w http.ResponseWriter, r *http.Request) {
	var req memberLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Richiesta non valida")
		return
	}
	m, err := orchestrators.ExecuteMemberLogin(r.Context(), orchestrators.MemberLoginInput{
		Email:    req.Email,
		Password: req.Password,
		IP:       middleware.ClientIP(r),
	}, orchestrators.MemberLoginDeps{LoginGuardDeps: s.guardDeps(), MemberStore: s.stores.MemberStore})
	if s.loginFailed(w, attempt.ScopeMember, err, "Email o Password errate") {
		return
	}

	token, _, err := s.sessions.Create(m.ID, m.Email, account.RoleMember)
	if err != nil {
		internalError(w, err)
		return
	}
	s.sessions.SetSessionCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"message":      "Login riuscito",
		"nome_cognome": m.FullName,
	})
}

func (s *Server) handleMemberLogout(w http.ResponseWriter, r *http.Request) {
	s.endSession(w, r, account.RoleMember)
	writeOK(w, "Logout effettuato")
}

// memberSession returns the caller's member session or answers 401.
func memberSession(w http.ResponseWriter, r *http.Request) (middleware.Session, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok || sess.Role != account.RoleMember {
		writeError(w, http.StatusUnauthorized, "Non autenticato")
		return middleware.Session{}, false
	}
	return sess, true
}

const timestampLayout = "2006-01-02 15:04:05"

func userJSON(m member.Member) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"nome_cognome":   m.FullName,
		"username":       m.FullName,
		"email":          m.Email,
		"phone":          m.Phone,
		"data_creazione": m.CreatedAt.Local().Format(timestampLayout),
	}
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := memberSession(w, r)
	if !ok {
		return
	}
	m, err := s.stores.MemberStore.GetByID(r.Context(), sess.Subject)
	if err != nil {
		writeError(w, http.StatusNotFound, "Utente non trovato")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "user": userJSON(m)})
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	members, err := s.stores.MemberStore.List(r.Context())
	if err != nil {
		internalError(w, err)
		return
	}
	users := make([]map[string]any, len(members))
	for i, m := range members {
		users[i] = userJSON(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "users": users})
}


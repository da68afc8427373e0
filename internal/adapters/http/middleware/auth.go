package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	domainAccount "gymroster/internal/domain/account"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionTTL is how long a session stays valid after login.
const SessionTTL = 24 * time.Hour

// Session represents an authenticated session.
// ID is stable for the life of the session and never leaves the server;
// the cookie carries an unrelated random token.
type Session struct {
	ID        string
	Subject   string // member id, or the admin username
	Email     string
	Role      string
	CreatedAt time.Time
}

// Expired reports whether the session is older than SessionTTL at now.
func (s Session) Expired(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL
}

// SessionStore is an in-memory session store bound to one cookie name.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]Session
	cookieName string
	now        func() time.Time
}

// NewSessionStore creates a new in-memory session store whose tokens
// travel in the named cookie.
func NewSessionStore(cookieName string) *SessionStore {
	return &SessionStore{
		sessions:   make(map[string]Session),
		cookieName: cookieName,
		now:        time.Now,
	}
}

// CookieName returns the cookie this store reads and writes.
func (ss *SessionStore) CookieName() string {
	return ss.cookieName
}

// Create stores a new session and returns the token.
// PRE: subject and role are non-empty
// POST: Session is stored with a fresh ID, token is returned
func (ss *SessionStore) Create(subject, email, role string) (string, Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", Session{}, err
	}
	session := Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		Email:     email,
		Role:      role,
		CreatedAt: ss.now(),
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[token] = session
	return token, session, nil
}

// Get retrieves a session by token.
// PRE: token is non-empty
// POST: Returns session if present and not expired
func (ss *SessionStore) Get(token string) (Session, bool) {
	ss.mu.RLock()
	session, ok := ss.sessions[token]
	ss.mu.RUnlock()
	if !ok || session.Expired(ss.now()) {
		return Session{}, false
	}
	return session, true
}

// Delete removes a session by token and returns what was removed.
// POST: Session with given token is removed
func (ss *SessionStore) Delete(token string) (Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	session, ok := ss.sessions[token]
	delete(ss.sessions, token)
	return session, ok
}

// Sweep removes every expired session and returns them.
// POST: No expired session remains in the store
func (ss *SessionStore) Sweep() []Session {
	now := ss.now()
	ss.mu.Lock()
	defer ss.mu.Unlock()
	var expired []Session
	for token, session := range ss.sessions {
		if session.Expired(now) {
			expired = append(expired, session)
			delete(ss.sessions, token)
		}
	}
	return expired
}

// Auth returns middleware that extracts the session from the cookie and sets it in context.
// It does NOT block unauthenticated requests; use RequireAuth or RequireRole for that.
func Auth(sessions *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(sessions.cookieName)
			if err == nil && cookie.Value != "" {
				if session, ok := sessions.Get(cookie.Value); ok {
					r = r.WithContext(ContextWithSession(r.Context(), session))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth returns middleware that redirects unauthenticated requests to /login.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSessionFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware for JSON endpoints that rejects requests
// without a session (401) or without one of the given roles (403).
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSessionFromContext(r.Context())
			if !ok {
				writeStatusError(w, http.StatusUnauthorized, "Non autorizzato")
				return
			}
			if !roleSet[session.Role] {
				writeStatusError(w, http.StatusForbidden, "Accesso negato")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeStatusError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": message})
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(Session)
	return session, ok
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// IsAdmin checks if the current session is an admin.
func IsAdmin(ctx context.Context) bool {
	session, ok := GetSessionFromContext(ctx)
	return ok && session.Role == domainAccount.RoleAdmin
}

// SetSessionCookie sets the session cookie on the response.
func (ss *SessionStore) SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ss.cookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   false, // Allow HTTP for local development
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(SessionTTL / time.Second),
	})
}

// ClearSessionCookie removes the session cookie.
func (ss *SessionStore) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ss.cookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

// TokenFromRequest returns the session token carried by the request, if any.
func (ss *SessionStore) TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(ss.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

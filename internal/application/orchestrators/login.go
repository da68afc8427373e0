package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gymroster/internal/domain/account"
	"gymroster/internal/domain/attempt"
	"gymroster/internal/domain/member"
)

// AttemptStore defines the store interface for failed-login counters.
type AttemptStore interface {
	Get(ctx context.Context, scope, ip string) (attempt.Attempt, error)
	Save(ctx context.Context, a attempt.Attempt) error
}

// MemberLookup defines the member store interface needed by MemberLogin.
type MemberLookup interface {
	GetByEmail(ctx context.Context, email string) (member.Member, error)
}

// Login errors.
var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// BlockedError is returned while an IP is locked out.
type BlockedError struct {
	RemainingSeconds int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("too many failed attempts: wait %d seconds", e.RemainingSeconds)
}

// LoginGuardDeps holds the lockout dependencies shared by both logins.
type LoginGuardDeps struct {
	AttemptStore AttemptStore
	Now          func() time.Time
}

// guardedLogin runs check under the IP lockout of scope. A failed check
// counts against the IP; a successful one clears its counter.
func guardedLogin(ctx context.Context, scope, ip string, deps LoginGuardDeps, check func() error) error {
	now := deps.Now()
	a, err := deps.AttemptStore.Get(ctx, scope, ip)
	if err != nil {
		return fmt.Errorf("loading login attempts: %w", err)
	}
	stale := a.Failures > 0 || !a.LastAttempt.IsZero()
	blocked, remaining := a.Blocked(now)
	if blocked {
		slog.Info("auth_event", "event", "login_blocked", "scope", scope, "ip", ip, "remaining_seconds", remaining)
		return &BlockedError{RemainingSeconds: remaining}
	}

	if err := check(); err != nil {
		if errors.Is(err, ErrMissingFields) {
			return err
		}
		a.RecordFailure(now)
		if saveErr := deps.AttemptStore.Save(ctx, a); saveErr != nil {
			slog.Error("login_attempt_save_failed", "scope", scope, "ip", ip, "error", saveErr)
		}
		slog.Info("auth_event", "event", "login_failed", "scope", scope, "ip", ip, "failures", a.Failures)
		return err
	}

	if stale {
		a.Reset()
		if err := deps.AttemptStore.Save(ctx, a); err != nil {
			slog.Error("login_attempt_save_failed", "scope", scope, "ip", ip, "error", err)
		}
	}
	return nil
}

// AdminLoginInput carries input for the admin login orchestrator.
type AdminLoginInput struct {
	Username string
	Password string
	IP       string
}

// AdminLoginDeps holds dependencies for AdminLogin.
type AdminLoginDeps struct {
	LoginGuardDeps
	Admin account.Admin
}

// ExecuteAdminLogin checks the admin credential under the admin lockout.
// PRE: IP is the caller's address
// POST: returns nil on success; *BlockedError while locked out;
// ErrMissingFields or ErrInvalidCredentials otherwise
// INVARIANT: a blocked IP is not checked and its counter is not bumped
func ExecuteAdminLogin(ctx context.Context, input AdminLoginInput, deps AdminLoginDeps) error {
	err := guardedLogin(ctx, attempt.ScopeAdmin, input.IP, deps.LoginGuardDeps, func() error {
		username := strings.TrimSpace(input.Username)
		password := strings.TrimSpace(input.Password)
		if username == "" || password == "" {
			return ErrMissingFields
		}
		if deps.Admin.Check(username, password) != nil {
			return ErrInvalidCredentials
		}
		return nil
	})
	if err == nil {
		slog.Info("auth_event", "event", "admin_login_success", "ip", input.IP)
	}
	return err
}

// MemberLoginInput carries input for the member login orchestrator.
type MemberLoginInput struct {
	Email    string
	Password string
	IP       string
}

// MemberLoginDeps holds dependencies for MemberLogin.
type MemberLoginDeps struct {
	LoginGuardDeps
	MemberStore MemberLookup
}

// ExecuteMemberLogin checks a member's email and password under the
// member lockout and returns the member on success.
// PRE: IP is the caller's address
// POST: same error contract as ExecuteAdminLogin
func ExecuteMemberLogin(ctx context.Context, input MemberLoginInput, deps MemberLoginDeps) (member.Member, error) {
	var found member.Member
	err := guardedLogin(ctx, attempt.ScopeMember, input.IP, deps.LoginGuardDeps, func() error {
		email := strings.TrimSpace(input.Email)
		password := strings.TrimSpace(input.Password)
		if email == "" || password == "" {
			return ErrMissingFields
		}
		m, err := deps.MemberStore.GetByEmail(ctx, email)
		if err != nil {
			return ErrInvalidCredentials
		}
		if m.CheckPassword(password) != nil {
			return ErrInvalidCredentials
		}
		found = m
		return nil
	})
	if err != nil {
		return member.Member{}, err
	}
	slog.Info("auth_event", "event", "member_login_success", "member_id", found.ID)
	return found, nil
}

package attempt

import (
	"errors"
	"time"
)

// Scope separates admin and member login counters for the same IP.
const (
	ScopeAdmin  = "admin"
	ScopeMember = "member"
)

// Lockout policy.
const (
	MaxFailures   = 3
	BlockDuration = 60 * time.Second
)

// ErrInvalidScope is returned for a scope other than admin or member.
var ErrInvalidScope = errors.New("scope must be 'admin' or 'member'")

// Attempt counts consecutive failed logins from one IP.
type Attempt struct {
	Scope       string
	IP          string
	Failures    int
	LastAttempt time.Time
}

// Validate checks the scope and IP.
func (a *Attempt) Validate() error {
	if a.Scope != ScopeAdmin && a.Scope != ScopeMember {
		return ErrInvalidScope
	}
	if a.IP == "" {
		return errors.New("ip cannot be empty")
	}
	return nil
}

// Blocked reports whether the IP is locked out at now and, if so, how many
// whole seconds remain. An elapsed lock is cleared on the receiver.
// POST: when the block has elapsed, Failures is 0 and LastAttempt is zero
func (a *Attempt) Blocked(now time.Time) (bool, int) {
	if a.Failures < MaxFailures || a.LastAttempt.IsZero() {
		return false, 0
	}
	elapsed := int(now.Sub(a.LastAttempt) / time.Second)
	remaining := int(BlockDuration/time.Second) - elapsed
	if remaining > 0 {
		return true, remaining
	}
	a.Reset()
	return false, 0
}

// RecordFailure counts one more failed login.
// POST: Failures incremented, LastAttempt is now
func (a *Attempt) RecordFailure(now time.Time) {
	a.Failures++
	a.LastAttempt = now
}

// Reset clears the counter after a successful login or an elapsed block.
func (a *Attempt) Reset() {
	a.Failures = 0
	a.LastAttempt = time.Time{}
}

package attempt

import (
	"context"

	domain "gymroster/internal/domain/attempt"
)

// Store persists failed-login counters per scope and IP.
type Store interface {
	// Get returns the counter for scope and ip; an unseen IP yields a zero counter.
	Get(ctx context.Context, scope, ip string) (domain.Attempt, error)
	// Save upserts the counter.
	Save(ctx context.Context, a domain.Attempt) error
}

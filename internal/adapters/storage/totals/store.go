package totals

import (
	"context"

	domain "gymroster/internal/domain/totals"
)

// Store persists the cash and instructor totals of each course month.
type Store interface {
	// Get returns the totals; a month never written yields zero totals.
	Get(ctx context.Context, course, month string) (domain.Totals, error)
	// Apply writes only the fields present in patch and returns the result.
	Apply(ctx context.Context, course, month string, patch domain.Patch) (domain.Totals, error)
}

package orchestrators

import (
	"context"
	"log/slog"

	"gymroster/internal/domain/totals"
)

// TotalsStore defines the totals persistence needed by SaveTotals.
type TotalsStore interface {
	Get(ctx context.Context, course, month string) (totals.Totals, error)
	Apply(ctx context.Context, course, month string, patch totals.Patch) (totals.Totals, error)
}

// SaveTotalsInput carries input for SaveTotals.
type SaveTotalsInput struct {
	Course string
	Month  string
	Patch  totals.Patch
}

// ExecuteSaveTotals writes the totals present in the patch.
// PRE: Course is non-empty
// POST: totals missing from the patch keep their stored value
func ExecuteSaveTotals(ctx context.Context, input SaveTotalsInput, store TotalsStore) (totals.Totals, error) {
	key, err := resolveKey(input.Course, input.Month)
	if err != nil {
		return totals.Totals{}, err
	}
	if input.Patch.IsEmpty() {
		return store.Get(ctx, key.Course, key.Month)
	}
	t, err := store.Apply(ctx, key.Course, key.Month, input.Patch)
	if err != nil {
		return totals.Totals{}, err
	}
	slog.Info("totals_saved", "course", key.Course, "month", key.Month, "cash", t.Cash.String(), "instructor", t.Instructor.String())
	return t, nil
}

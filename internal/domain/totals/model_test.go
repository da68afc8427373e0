package totals_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"gymroster/internal/domain/totals"
)

func TestApplyPartial(t *testing.T) {
	base := totals.Totals{
		Course:     "Yoga",
		Month:      "Ottobre-2025",
		Cash:       decimal.RequireFromString("40"),
		Instructor: decimal.RequireFromString("12.5"),
	}

	got := base.Apply(totals.InstructorPatch(decimal.RequireFromString("20")))
	if !got.Cash.Equal(base.Cash) {
		t.Errorf("cash changed to %s", got.Cash)
	}
	if !got.Instructor.Equal(decimal.RequireFromString("20")) {
		t.Errorf("instructor = %s, want 20", got.Instructor)
	}

	got = base.Apply(totals.CashPatch(decimal.Zero))
	if !got.Cash.IsZero() || !got.Instructor.Equal(base.Instructor) {
		t.Errorf("cash patch produced %+v", got)
	}

	if got := base.Apply(totals.Patch{}); !got.Cash.Equal(base.Cash) || !got.Instructor.Equal(base.Instructor) {
		t.Errorf("empty patch changed totals: %+v", got)
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(totals.Patch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if totals.CashPatch(decimal.Zero).IsEmpty() {
		t.Error("cash patch should not be empty")
	}
}

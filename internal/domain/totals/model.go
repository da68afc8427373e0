package totals

import (
	"github.com/shopspring/decimal"
)

// Totals holds the two remote-backed counters of one course month.
type Totals struct {
	Course     string
	Month      string
	Cash       decimal.Decimal // sum of paid amounts, persisted on explicit compute
	Instructor decimal.Decimal // running instructor accumulator
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Cash       *decimal.Decimal
	Instructor *decimal.Decimal
}

// IsEmpty reports whether the patch changes nothing.
// INVARIANT: Patch fields are not mutated
func (p Patch) IsEmpty() bool {
	return p.Cash == nil && p.Instructor == nil
}

// Apply returns t with the patched fields replaced.
// PRE: none
// POST: Only non-nil patch fields differ from t
func (t Totals) Apply(p Patch) Totals {
	if p.Cash != nil {
		t.Cash = *p.Cash
	}
	if p.Instructor != nil {
		t.Instructor = *p.Instructor
	}
	return t
}

// CashPatch builds a patch that only sets the cash total.
func CashPatch(v decimal.Decimal) Patch {
	return Patch{Cash: &v}
}

// InstructorPatch builds a patch that only sets the instructor total.
func InstructorPatch(v decimal.Decimal) Patch {
	return Patch{Instructor: &v}
}

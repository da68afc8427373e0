package courserow

import (
	"context"

	"gymroster/internal/domain/roster"
)

// Record is a stored row with its position and the id of the member whose
// email it carries ("" when no member matches).
type Record struct {
	Index    int
	MemberID string
	Row      roster.Row
}

// Store persists course rows per (course, month).
type Store interface {
	// List returns the rows of a course month ordered by index.
	List(ctx context.Context, key roster.Key) ([]Record, error)

	// Replace deletes the course month and writes rows at indices 0..n-1.
	// Identity fields of each row are then copied into every month of
	// propagateTo, inserting an unpaid row where no row matches.
	// POST: all writes commit together or not at all
	Replace(ctx context.Context, key roster.Key, rows []roster.Row, propagateTo []string) error

	// Append adds one row after the last index and returns its index.
	Append(ctx context.Context, key roster.Key, row roster.Row) (int, error)

	// Seed appends an unpaid copy of row to each listed month of course
	// unless a row with the same first name, last name and phone exists.
	// POST: returns the number of rows inserted
	Seed(ctx context.Context, course string, months []string, row roster.Row) (int, error)

	// Courses returns the distinct course names that have rows.
	Courses(ctx context.Context) ([]string, error)
}

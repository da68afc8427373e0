package totals

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"gymroster/internal/adapters/storage"
	domain "gymroster/internal/domain/totals"
)

// SQLiteStore implements Store using SQLite. Amounts are stored as decimal text.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new totals store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryRower, course, month string) (domain.Totals, error) {
	t := domain.Totals{Course: course, Month: month}
	var cash, instructor string
	err := q.QueryRowContext(ctx,
		"SELECT cash, instructor FROM course_totals WHERE course = ? AND month = ?", course, month).
		Scan(&cash, &instructor)
	if err == sql.ErrNoRows {
		return t, nil
	}
	if err != nil {
		return domain.Totals{}, err
	}
	if t.Cash, err = decimal.NewFromString(cash); err != nil {
		return domain.Totals{}, fmt.Errorf("course_totals cash %q: %w", cash, err)
	}
	if t.Instructor, err = decimal.NewFromString(instructor); err != nil {
		return domain.Totals{}, fmt.Errorf("course_totals instructor %q: %w", instructor, err)
	}
	return t, nil
}

// Get returns the totals for a course month.
// POST: a missing row is returned as zero totals, not an error
func (s *SQLiteStore) Get(ctx context.Context, course, month string) (domain.Totals, error) {
	return get(ctx, s.db, course, month)
}

// Apply patches the totals inside one transaction.
// PRE: patch is not empty
// POST: fields absent from patch keep their stored value
func (s *SQLiteStore) Apply(ctx context.Context, course, month string, patch domain.Patch) (domain.Totals, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Totals{}, err
	}
	defer tx.Rollback()

	current, err := get(ctx, tx, course, month)
	if err != nil {
		return domain.Totals{}, err
	}
	next := current.Apply(patch)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO course_totals (course, month, cash, instructor) VALUES (?, ?, ?, ?)
		 ON CONFLICT(course, month) DO UPDATE SET cash=excluded.cash, instructor=excluded.instructor`,
		course, month, next.Cash.String(), next.Instructor.String()); err != nil {
		return domain.Totals{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Totals{}, err
	}
	return next, nil
}

package courserow

import (
	"context"
	"database/sql"

	"gymroster/internal/adapters/storage"
	"gymroster/internal/domain/roster"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new course row store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// execer is satisfied by *sql.Tx and storage.SQLDB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// List returns the rows of a course month ordered by index.
// POST: Row.RemoteID equals MemberID
func (s *SQLiteStore) List(ctx context.Context, key roster.Key) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cr.row_index, COALESCE(m.id, ''), cr.first_name, cr.last_name, cr.email, cr.phone,
		        cr.card_number, cr.certificate_date, cr.paid, cr.paid_amount
		 FROM course_row cr
		 LEFT JOIN member m ON cr.email <> '' AND m.email = cr.email
		 WHERE cr.course = ? AND cr.month = ?
		 ORDER BY cr.row_index`, key.Course, key.Month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var paid int
		r := &rec.Row
		if err := rows.Scan(&rec.Index, &rec.MemberID, &r.FirstName, &r.LastName, &r.Email, &r.Phone,
			&r.CardNumber, &r.CertificateDate, &paid, &r.PaidAmount); err != nil {
			return nil, err
		}
		r.Paid = paid != 0
		r.RemoteID = rec.MemberID
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Replace rewrites a course month and propagates identity fields.
// PRE: key is valid
// POST: the month holds exactly rows; all writes are one transaction
func (s *SQLiteStore) Replace(ctx context.Context, key roster.Key, rows []roster.Row, propagateTo []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM course_row WHERE course = ? AND month = ?", key.Course, key.Month); err != nil {
		return err
	}
	for i, r := range rows {
		if err := insertAt(ctx, tx, key, i, r); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if r.Email == "" && r.Phone == "" {
			continue
		}
		for _, m := range propagateTo {
			if m == key.Month {
				continue
			}
			if err := propagate(ctx, tx, roster.Key{Course: key.Course, Month: m}, r); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// propagate updates the identity fields of rows in key matching r by email
// and phone, or appends an unpaid copy when none match.
func propagate(ctx context.Context, tx execer, key roster.Key, r roster.Row) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE course_row SET first_name = ?, last_name = ?, card_number = ?, certificate_date = ?
		 WHERE course = ? AND month = ? AND email = ? AND phone = ?`,
		r.FirstName, r.LastName, r.CardNumber, r.CertificateDate, key.Course, key.Month, r.Email, r.Phone)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	unpaid := r
	unpaid.Paid = false
	unpaid.PaidAmount = ""
	_, err = appendRow(ctx, tx, key, unpaid)
	return err
}

// Append adds one row after the last index.
// POST: returns the new row's index
func (s *SQLiteStore) Append(ctx context.Context, key roster.Key, row roster.Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	idx, err := appendRow(ctx, tx, key, row)
	if err != nil {
		return 0, err
	}
	return idx, tx.Commit()
}

// Seed appends unpaid copies of row to months that lack it.
// POST: returns the number of rows inserted
func (s *SQLiteStore) Seed(ctx context.Context, course string, months []string, row roster.Row) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	row.Paid = false
	row.PaidAmount = ""
	inserted := 0
	for _, m := range months {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM course_row WHERE course = ? AND month = ? AND first_name = ? AND last_name = ? AND phone = ? LIMIT 1`,
			course, m, row.FirstName, row.LastName, row.Phone).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return 0, err
		}
		if _, err := appendRow(ctx, tx, roster.Key{Course: course, Month: m}, row); err != nil {
			return 0, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

// Courses returns the distinct course names that have rows.
func (s *SQLiteStore) Courses(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT course FROM course_row ORDER BY course")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var courses []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

func appendRow(ctx context.Context, tx execer, key roster.Key, r roster.Row) (int, error) {
	var idx int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(row_index), -1) + 1 FROM course_row WHERE course = ? AND month = ?",
		key.Course, key.Month).Scan(&idx); err != nil {
		return 0, err
	}
	return idx, insertAt(ctx, tx, key, idx, r)
}

func insertAt(ctx context.Context, tx execer, key roster.Key, idx int, r roster.Row) error {
	paid := 0
	if r.Paid {
		paid = 1
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO course_row (course, month, row_index, first_name, last_name, email, phone, card_number, certificate_date, paid, paid_amount)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Course, key.Month, idx, r.FirstName, r.LastName, r.Email, r.Phone, r.CardNumber, r.CertificateDate, paid, r.PaidAmount)
	return err
}

package attempt

import (
	"context"
	"database/sql"
	"time"

	"gymroster/internal/adapters/storage"
	domain "gymroster/internal/domain/attempt"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new attempt store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get returns the counter for scope and ip.
// POST: a missing row is returned as a zero counter, not an error
func (s *SQLiteStore) Get(ctx context.Context, scope, ip string) (domain.Attempt, error) {
	a := domain.Attempt{Scope: scope, IP: ip}
	var last string
	err := s.db.QueryRowContext(ctx,
		"SELECT failures, last_attempt FROM login_attempt WHERE scope = ? AND ip = ?", scope, ip).
		Scan(&a.Failures, &last)
	if err == sql.ErrNoRows {
		return a, nil
	}
	if err != nil {
		return domain.Attempt{}, err
	}
	if last != "" {
		a.LastAttempt, _ = time.Parse(time.RFC3339Nano, last)
	}
	return a, nil
}

// Save upserts the counter.
// PRE: a has been validated
func (s *SQLiteStore) Save(ctx context.Context, a domain.Attempt) error {
	last := ""
	if !a.LastAttempt.IsZero() {
		last = a.LastAttempt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempt (scope, ip, failures, last_attempt) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope, ip) DO UPDATE SET failures=excluded.failures, last_attempt=excluded.last_attempt`,
		a.Scope, a.IP, a.Failures, last)
	return err
}

package draft

import (
	"context"
	"database/sql"
	"time"

	"gymroster/internal/adapters/storage"
)

// SQLiteStore implements Store over the console's draft table.
type SQLiteStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLiteStore creates a new draft store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the payload stored for the session and key.
func (s *SQLiteStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM draft WHERE session_id = ? AND draft_key = ?", sessionID, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// Put overwrites the payload for the session and key.
// POST: exactly one row exists for (sessionID, key)
func (s *SQLiteStore) Put(ctx context.Context, sessionID, key, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO draft (session_id, draft_key, payload, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, draft_key) DO UPDATE SET payload=excluded.payload, updated_at=excluded.updated_at`,
		sessionID, key, payload, s.now().UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes one draft. Idempotent.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM draft WHERE session_id = ? AND draft_key = ?", sessionID, key)
	return err
}

// DeleteSession removes every draft of a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM draft WHERE session_id = ?", sessionID)
	return err
}

// DeleteAll removes the drafts of every session and returns how many went.
// Sessions do not outlive the console process, so leftovers at startup
// belong to sessions that ended without a logout.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM draft")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

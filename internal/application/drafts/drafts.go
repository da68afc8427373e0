// Package drafts keeps unsaved roster edits for one console session.
//
// A draft maps a course month to its ordered rows. Drafts survive page
// reloads and navigation within the session, are overwritten on every
// edit, and are removed by a successful save or when the session ends.
package drafts

import (
	"context"
	"encoding/json"
	"log/slog"

	"gymroster/internal/adapters/storage/draft"
	"gymroster/internal/domain/roster"
)

// Store is the draft store of one session.
type Store struct {
	raw       draft.Store
	sessionID string
}

// New binds a raw store to a session.
// PRE: sessionID is non-empty
func New(raw draft.Store, sessionID string) *Store {
	return &Store{raw: raw, sessionID: sessionID}
}

// SessionID returns the session the store is bound to.
func (s *Store) SessionID() string {
	return s.sessionID
}

// Get returns the draft for key.
// POST: a missing, unreadable or malformed draft is reported absent and
// never returned as an error; a present draft holds at least one row
func (s *Store) Get(ctx context.Context, key roster.Key) ([]roster.Row, bool) {
	payload, ok, err := s.raw.Get(ctx, s.sessionID, key.DraftKey())
	if err != nil {
		slog.Warn("draft_read_failed", "key", key.DraftKey(), "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var rows []roster.Row
	if err := json.Unmarshal([]byte(payload), &rows); err != nil {
		slog.Warn("draft_malformed", "key", key.DraftKey(), "error", err)
		return nil, false
	}
	return roster.Normalize(rows), true
}

// Put overwrites the draft for key.
// POST: the stored draft holds rows, or one empty row when rows is empty
func (s *Store) Put(ctx context.Context, key roster.Key, rows []roster.Row) error {
	payload, err := json.Marshal(roster.Normalize(rows))
	if err != nil {
		return err
	}
	return s.raw.Put(ctx, s.sessionID, key.DraftKey(), string(payload))
}

// Clear removes the draft for key. Idempotent.
func (s *Store) Clear(ctx context.Context, key roster.Key) error {
	return s.raw.Delete(ctx, s.sessionID, key.DraftKey())
}

// Purge removes every draft of the session.
func (s *Store) Purge(ctx context.Context) error {
	return s.raw.DeleteSession(ctx, s.sessionID)
}

package member

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gymroster/internal/adapters/storage"
	domain "gymroster/internal/domain/member"
)

const selectColumns = "SELECT id, full_name, email, phone, password_hash, document_path, created_at FROM member"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db storage.SQLDB
}

// NewSQLiteStore creates a new member store.
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByID retrieves a Member by its ID.
// PRE: id is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	entity, err := scanMember(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return domain.Member{}, fmt.Errorf("member not found: %w", err)
	}
	return entity, err
}

// GetByEmail retrieves a Member by email.
// PRE: email is non-empty
// POST: Returns the entity or an error wrapping sql.ErrNoRows
func (s *SQLiteStore) GetByEmail(ctx context.Context, email string) (domain.Member, error) {
	entity, err := scanMember(s.db.QueryRowContext(ctx, selectColumns+" WHERE email = ?", email))
	if err == sql.ErrNoRows {
		return domain.Member{}, fmt.Errorf("member not found: %w", err)
	}
	return entity, err
}

// Save persists a Member (insert or update by id).
// PRE: value has been validated
func (s *SQLiteStore) Save(ctx context.Context, value domain.Member) error {
	created := value.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO member (id, full_name, email, phone, password_hash, document_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   full_name=excluded.full_name, email=excluded.email, phone=excluded.phone,
		   password_hash=excluded.password_hash, document_path=excluded.document_path`,
		value.ID, value.FullName, value.Email, value.Phone, value.PasswordHash,
		value.DocumentPath, created.UTC().Format(time.RFC3339))
	return err
}

// SetDocument records the uploaded document's file name.
// POST: returns an error wrapping sql.ErrNoRows when the member does not exist
func (s *SQLiteStore) SetDocument(ctx context.Context, id, documentPath string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE member SET document_path = ? WHERE id = ?", documentPath, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("member not found: %w", sql.ErrNoRows)
	}
	return nil
}

// List returns every member ordered by creation.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+" ORDER BY created_at, email")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (domain.Member, error) {
	var m domain.Member
	var created string
	if err := row.Scan(&m.ID, &m.FullName, &m.Email, &m.Phone, &m.PasswordHash, &m.DocumentPath, &created); err != nil {
		return domain.Member{}, err
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return m, nil
}

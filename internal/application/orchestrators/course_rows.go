package orchestrators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gymroster/internal/domain/member"
	"gymroster/internal/domain/month"
	"gymroster/internal/domain/roster"
)

// RowWriter defines the course row store interface needed by the roster orchestrators.
type RowWriter interface {
	Replace(ctx context.Context, key roster.Key, rows []roster.Row, propagateTo []string) error
	Append(ctx context.Context, key roster.Key, row roster.Row) (int, error)
}

// ErrMissingEmail is returned when a single row is created without an email.
var ErrMissingEmail = errors.New("row email is required")

// resolveKey fills in the default month.
func resolveKey(course, monthKey string) (roster.Key, error) {
	key := roster.Key{Course: strings.TrimSpace(course), Month: strings.TrimSpace(monthKey)}
	if key.Month == "" {
		key.Month = month.DefaultKey
	}
	return key, key.Validate()
}

// SaveCourseRowsInput carries input for SaveCourseRows.
type SaveCourseRowsInput struct {
	Course string
	Month  string // empty means the default month
	Rows   []roster.Row
}

// SaveCourseRowsDeps holds dependencies for SaveCourseRows.
type SaveCourseRowsDeps struct {
	RowStore RowWriter
	Months   []string // the store's month sequence, first month first
}

// ExecuteSaveCourseRows replaces the rows of a course month. When the month
// is the first of the sequence, each row's identity fields are copied into
// every later month.
// PRE: Course is non-empty
// POST: the course month holds exactly Rows, in order
func ExecuteSaveCourseRows(ctx context.Context, input SaveCourseRowsInput, deps SaveCourseRowsDeps) error {
	key, err := resolveKey(input.Course, input.Month)
	if err != nil {
		return err
	}
	var propagateTo []string
	if len(deps.Months) > 0 && key.Month == deps.Months[0] {
		propagateTo = deps.Months[1:]
	}
	rows := make([]roster.Row, len(input.Rows))
	for i, r := range input.Rows {
		rows[i] = r.Trimmed()
	}
	if err := deps.RowStore.Replace(ctx, key, rows, propagateTo); err != nil {
		return fmt.Errorf("saving %s %s: %w", key.Course, key.Month, err)
	}
	slog.Info("roster_committed", "course", key.Course, "month", key.Month, "rows", len(rows), "propagated_months", len(propagateTo))
	return nil
}

// CreateSingleRowInput carries input for CreateSingleRow.
type CreateSingleRowInput struct {
	Course string
	Month  string
	Row    roster.Row
}

// CreateSingleRowResult identifies the created row and its member.
type CreateSingleRowResult struct {
	MemberID string
	RowIndex int
}

// CreateSingleRowDeps holds dependencies for CreateSingleRow.
type CreateSingleRowDeps struct {
	MemberStore MemberStore
	RowStore    RowWriter
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteCreateSingleRow appends one row and makes sure a member owns its
// email, creating a member without a password when none does.
// PRE: Row.Email is non-empty
// POST: the row is the last of the course month; MemberID names a stored member
func ExecuteCreateSingleRow(ctx context.Context, input CreateSingleRowInput, deps CreateSingleRowDeps) (CreateSingleRowResult, error) {
	key, err := resolveKey(input.Course, input.Month)
	if err != nil {
		return CreateSingleRowResult{}, err
	}
	row := input.Row.Trimmed()
	row.RemoteID = ""
	if row.Email == "" {
		return CreateSingleRowResult{}, ErrMissingEmail
	}

	m, err := deps.MemberStore.GetByEmail(ctx, row.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		m = member.Member{
			ID:        deps.GenerateID(),
			FullName:  member.JoinName(row.FirstName, row.LastName),
			Email:     row.Email,
			Phone:     row.Phone,
			CreatedAt: deps.Now(),
		}
		if err := m.Validate(); err != nil {
			return CreateSingleRowResult{}, err
		}
		if err := deps.MemberStore.Save(ctx, m); err != nil {
			return CreateSingleRowResult{}, fmt.Errorf("creating member: %w", err)
		}
		slog.Info("member_created_from_row", "member_id", m.ID, "course", key.Course)
	case err != nil:
		return CreateSingleRowResult{}, fmt.Errorf("looking up member: %w", err)
	}

	idx, err := deps.RowStore.Append(ctx, key, row)
	if err != nil {
		return CreateSingleRowResult{}, fmt.Errorf("appending row: %w", err)
	}
	return CreateSingleRowResult{MemberID: m.ID, RowIndex: idx}, nil
}

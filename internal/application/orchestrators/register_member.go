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
	"gymroster/internal/domain/roster"
)

// MemberStore defines the interface for member persistence.
type MemberStore interface {
	Save(ctx context.Context, m member.Member) error
	GetByID(ctx context.Context, id string) (member.Member, error)
	GetByEmail(ctx context.Context, email string) (member.Member, error)
}

// RowSeeder defines the course row store interface needed by RegisterMember.
type RowSeeder interface {
	Seed(ctx context.Context, course string, months []string, row roster.Row) (int, error)
}

// ErrEmailTaken is returned when the email already belongs to a member.
var ErrEmailTaken = errors.New("email already registered")

// RegisterMemberInput carries input for the orchestrator.
type RegisterMemberInput struct {
	FullName string
	Email    string
	Password string
	Phone    string
}

// RegisterMemberDeps holds dependencies for RegisterMember.
type RegisterMemberDeps struct {
	MemberStore MemberStore
	RowStore    RowSeeder
	SeedCourse  string   // course every new member is enrolled in
	Months      []string // months the enrolment is seeded for
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteRegisterMember creates a member with a password and enrols them in
// the seed course for every month of the sequence.
// PRE: every input field is non-empty after trimming
// POST: member saved; an unpaid seed-course row exists in each month for
// the member's name and phone
// INVARIANT: Email must be unique
func ExecuteRegisterMember(ctx context.Context, input RegisterMemberInput, deps RegisterMemberDeps) (member.Member, error) {
	fullName := strings.TrimSpace(input.FullName)
	email := strings.TrimSpace(input.Email)
	password := strings.TrimSpace(input.Password)
	phone := strings.TrimSpace(input.Phone)
	if fullName == "" || email == "" || password == "" || phone == "" {
		return member.Member{}, ErrMissingFields
	}

	if _, err := deps.MemberStore.GetByEmail(ctx, email); err == nil {
		return member.Member{}, ErrEmailTaken
	} else if !errors.Is(err, sql.ErrNoRows) {
		return member.Member{}, fmt.Errorf("checking email: %w", err)
	}

	m := member.Member{
		ID:        deps.GenerateID(),
		FullName:  fullName,
		Email:     email,
		Phone:     phone,
		CreatedAt: deps.Now(),
	}
	if err := m.Validate(); err != nil {
		return member.Member{}, err
	}
	if err := m.SetPassword(password); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Save(ctx, m); err != nil {
		return member.Member{}, err
	}

	first, last := member.SplitName(fullName)
	seeded, err := deps.RowStore.Seed(ctx, deps.SeedCourse, deps.Months, roster.Row{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Phone:     phone,
	})
	if err != nil {
		return member.Member{}, fmt.Errorf("seeding %s rows: %w", deps.SeedCourse, err)
	}

	slog.Info("member_registered", "member_id", m.ID, "seed_course", deps.SeedCourse, "rows_seeded", seeded)
	return m, nil
}

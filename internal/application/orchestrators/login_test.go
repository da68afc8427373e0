package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	attemptStore "gymroster/internal/adapters/storage/attempt"
	memberStore "gymroster/internal/adapters/storage/member"
	"gymroster/internal/adapters/storage/storagetest"
	"gymroster/internal/domain/account"
	"gymroster/internal/domain/attempt"
	"gymroster/internal/domain/member"
)

func adminLoginDeps(t *testing.T, clock *testClock) (AdminLoginDeps, *attemptStore.SQLiteStore) {
	t.Helper()
	admin, err := account.NewAdmin("admin", "segreta")
	require.NoError(t, err)
	store := attemptStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	return AdminLoginDeps{
		LoginGuardDeps: LoginGuardDeps{AttemptStore: store, Now: clock.Now},
		Admin:          admin,
	}, store
}

func TestExecuteAdminLogin_LockoutCycle(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	deps, store := adminLoginDeps(t, clock)
	wrong := AdminLoginInput{Username: "admin", Password: "nope", IP: "192.0.2.10"}

	for i := 0; i < attempt.MaxFailures; i++ {
		err := ExecuteAdminLogin(ctx, wrong, deps)
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}

	clock.Advance(18 * time.Second)
	err := ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "segreta", IP: "192.0.2.10"}, deps)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked, "correct password must still be refused while blocked")
	assert.Equal(t, 42, blocked.RemainingSeconds)

	stored, err := store.Get(ctx, attempt.ScopeAdmin, "192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, attempt.MaxFailures, stored.Failures, "blocked attempts are not counted")

	clock.Advance(attempt.BlockDuration)
	require.NoError(t, ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "segreta", IP: "192.0.2.10"}, deps))

	stored, err = store.Get(ctx, attempt.ScopeAdmin, "192.0.2.10")
	require.NoError(t, err)
	assert.Zero(t, stored.Failures)
}

func TestExecuteAdminLogin_OtherIPNotBlocked(t *testing.T) {
	ctx := context.Background()
	deps, _ := adminLoginDeps(t, newTestClock())
	for i := 0; i < attempt.MaxFailures; i++ {
		_ = ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "x", IP: "192.0.2.1"}, deps)
	}
	assert.NoError(t, ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "segreta", IP: "192.0.2.2"}, deps))
}

func TestExecuteAdminLogin_MissingFieldsNotCounted(t *testing.T) {
	ctx := context.Background()
	deps, store := adminLoginDeps(t, newTestClock())

	for i := 0; i < attempt.MaxFailures+2; i++ {
		err := ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "  ", IP: "192.0.2.3"}, deps)
		require.ErrorIs(t, err, ErrMissingFields)
	}
	stored, err := store.Get(ctx, attempt.ScopeAdmin, "192.0.2.3")
	require.NoError(t, err)
	assert.Zero(t, stored.Failures)
}

func TestExecuteMemberLogin(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	db := storagetest.OpenServerDB(t)
	members := memberStore.NewSQLiteStore(db)

	m := member.Member{ID: "m-1", FullName: "Anna Rossi", Email: "anna@example.com", Phone: "333", CreatedAt: clock.Now()}
	require.NoError(t, m.SetPassword("password1"))
	require.NoError(t, members.Save(ctx, m))

	deps := MemberLoginDeps{
		LoginGuardDeps: LoginGuardDeps{AttemptStore: attemptStore.NewSQLiteStore(db), Now: clock.Now},
		MemberStore:    members,
	}

	tests := []struct {
		name    string
		input   MemberLoginInput
		wantErr error
	}{
		{"success", MemberLoginInput{Email: "anna@example.com", Password: "password1", IP: "a"}, nil},
		{"wrong password", MemberLoginInput{Email: "anna@example.com", Password: "password2", IP: "b"}, ErrInvalidCredentials},
		{"unknown email", MemberLoginInput{Email: "nobody@example.com", Password: "password1", IP: "c"}, ErrInvalidCredentials},
		{"missing email", MemberLoginInput{Password: "password1", IP: "d"}, ErrMissingFields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExecuteMemberLogin(ctx, tt.input, deps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got.ID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "m-1", got.ID)
		})
	}
}

func TestExecuteMemberLogin_ScopesAreSeparate(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	db := storagetest.OpenServerDB(t)
	attempts := attemptStore.NewSQLiteStore(db)

	admin, err := account.NewAdmin("admin", "segreta")
	require.NoError(t, err)
	adminDeps := AdminLoginDeps{LoginGuardDeps: LoginGuardDeps{AttemptStore: attempts, Now: clock.Now}, Admin: admin}
	for i := 0; i < attempt.MaxFailures; i++ {
		_ = ExecuteAdminLogin(ctx, AdminLoginInput{Username: "admin", Password: "x", IP: "192.0.2.9"}, adminDeps)
	}

	memberDeps := MemberLoginDeps{
		LoginGuardDeps: LoginGuardDeps{AttemptStore: attempts, Now: clock.Now},
		MemberStore:    memberStore.NewSQLiteStore(db),
	}
	_, err = ExecuteMemberLogin(ctx, MemberLoginInput{Email: "x@example.com", Password: "whatever", IP: "192.0.2.9"}, memberDeps)
	var blocked *BlockedError
	assert.False(t, errors.As(err, &blocked), "admin lockout leaked into member scope: %v", err)
}

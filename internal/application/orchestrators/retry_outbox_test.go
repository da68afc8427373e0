package orchestrators

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymroster/internal/adapters/email"
	outboxStore "gymroster/internal/adapters/storage/outbox"
	"gymroster/internal/adapters/storage/storagetest"
	domain "gymroster/internal/domain/outbox"
)

func TestOutboxProcessor_DeliversAndRetries(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := outboxStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	sender := email.NewNoopSender()
	sender.FailFor("b@example.com", errors.New("mailbox unavailable"))

	_, err := ExecuteSendPaymentReminder(ctx, SendPaymentReminderInput{
		Month:  "Ottobre-2025",
		Emails: []string{"a@example.com", "b@example.com"},
	}, SendPaymentReminderDeps{Outbox: store, GenerateID: seqIDs("ob"), Now: clock.Now})
	require.NoError(t, err)

	p := NewOutboxProcessor(store, map[string]ActionExecutor{
		domain.ActionTypeEmail: &EmailExecutor{Sender: sender},
	})
	p.now = clock.Now

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a@example.com"}, sent[0].To)
	assert.Contains(t, sent[0].HTML, "Ciao, stanno per scadere")

	delivered, err := store.GetByID(ctx, "ob-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, delivered.Status)
	assert.NotEmpty(t, delivered.ExternalID)

	failing, err := store.GetByID(ctx, "ob-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, failing.Status)
	assert.Equal(t, 1, failing.Attempts)
	assert.Equal(t, "mailbox unavailable", failing.ErrorMessage)

	n, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "backoff has not elapsed")

	clock.Advance(time.Minute)
	n, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	failing, err = store.GetByID(ctx, "ob-2")
	require.NoError(t, err)
	assert.Equal(t, 2, failing.Attempts)
}

func TestOutboxProcessor_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := outboxStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	sender := email.NewNoopSender()
	sender.FailFor("b@example.com", errors.New("bounced"))

	entry, err := domain.NewEmailEntry("ob-1", domain.EmailPayload{
		Kind: domain.KindPaymentReminder, To: "b@example.com", Subject: "s", Body: "b",
	}, clock.Now())
	require.NoError(t, err)
	entry.MaxAttempts = 2
	require.NoError(t, store.Save(ctx, entry))

	p := NewOutboxProcessor(store, map[string]ActionExecutor{domain.ActionTypeEmail: &EmailExecutor{Sender: sender}})
	p.now = clock.Now

	for i := 0; i < 2; i++ {
		_, err := p.ProcessPending(ctx)
		require.NoError(t, err)
		clock.Advance(time.Hour)
	}

	got, err := store.GetByID(ctx, "ob-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)

	pending, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	failed, err := store.ListFailed(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestOutboxProcessor_UnknownActionFailsAtOnce(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := outboxStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	require.NoError(t, store.Save(ctx, domain.Entry{
		ID: "ob-1", ActionType: "sms", Payload: "{}", Status: domain.StatusPending,
		MaxAttempts: domain.DefaultMaxAttempts, CreatedAt: clock.Now(),
	}))

	p := NewOutboxProcessor(store, map[string]ActionExecutor{})
	p.now = clock.Now
	_, err := p.ProcessPending(ctx)
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "ob-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no executor registered")
}

func TestOutboxProcessor_AbandonEntry(t *testing.T) {
	ctx := context.Background()
	store := outboxStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	entry, err := domain.NewEmailEntry("ob-1", domain.EmailPayload{To: "a@example.com", Subject: "s"}, newTestClock().Now())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, entry))

	p := NewOutboxProcessor(store, nil)
	require.NoError(t, p.AbandonEntry(ctx, "ob-1"))

	got, err := store.GetByID(ctx, "ob-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAbandoned, got.Status)
}

func TestOutboxProcessor_RetryEntry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := outboxStore.NewSQLiteStore(storagetest.OpenServerDB(t))
	sender := email.NewNoopSender()
	sender.FailFor("b@example.com", errors.New("bounced"))

	entry, err := domain.NewEmailEntry("ob-1", domain.EmailPayload{
		Kind: domain.KindPaymentReminder, To: "b@example.com", Subject: "s", Body: "b",
	}, clock.Now())
	require.NoError(t, err)
	entry.MaxAttempts = 1
	require.NoError(t, store.Save(ctx, entry))

	p := NewOutboxProcessor(store, map[string]ActionExecutor{domain.ActionTypeEmail: &EmailExecutor{Sender: sender}})
	p.now = clock.Now

	_, err = p.RetryEntry(ctx, "ob-1")
	assert.ErrorIs(t, err, domain.ErrNotFailed, "pending entries are left to the worker")

	_, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	failed, err := p.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	sender.FailFor("b@example.com", nil)
	got, err := p.RetryEntry(ctx, "ob-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDone, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Len(t, sender.Sent(), 1)

	assert.ErrorIs(t, p.AbandonEntry(ctx, "ob-1"), domain.ErrAlreadyDone)
}

package outbox_test

import (
	"errors"
	"testing"
	"time"

	"gymroster/internal/domain/outbox"
)

func TestNewEmailEntry(t *testing.T) {
	now := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)
	payload := outbox.EmailPayload{
		Kind:    outbox.KindPaymentReminder,
		To:      "anna@example.com",
		Subject: "Promemoria pagamento mese Ottobre-2025",
		Body:    "Ciao",
	}
	e, err := outbox.NewEmailEntry("e-1", payload, now)
	if err != nil {
		t.Fatalf("NewEmailEntry: %v", err)
	}
	if e.Status != outbox.StatusPending || e.MaxAttempts != outbox.DefaultMaxAttempts || e.ActionType != outbox.ActionTypeEmail {
		t.Errorf("unexpected entry: %+v", e)
	}
	got, err := e.EmailPayload()
	if err != nil {
		t.Fatalf("EmailPayload: %v", err)
	}
	if got != payload {
		t.Errorf("payload = %+v, want %+v", got, payload)
	}

	if _, err := outbox.NewEmailEntry("e-2", outbox.EmailPayload{Subject: "x"}, now); !errors.Is(err, outbox.ErrEmptyRecipient) {
		t.Errorf("missing recipient err = %v", err)
	}
}

func TestEntry_RetryLifecycle(t *testing.T) {
	now := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)
	e := outbox.Entry{ActionType: outbox.ActionTypeEmail, Payload: "{}", CreatedAt: now, Status: outbox.StatusPending, MaxAttempts: 2}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("smtp down"))
	if e.Status != outbox.StatusRetrying || !e.CanRetry() || e.IsTerminal() {
		t.Fatalf("after first failure: %+v", e)
	}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("smtp down"))
	if e.Status != outbox.StatusFailed || e.CanRetry() || !e.IsTerminal() {
		t.Fatalf("after last failure: %+v", e)
	}
	if e.ErrorMessage != "smtp down" {
		t.Errorf("ErrorMessage = %q", e.ErrorMessage)
	}
}

func TestEntry_MarkSuccess(t *testing.T) {
	e := outbox.Entry{Status: outbox.StatusRetrying, ErrorMessage: "old"}
	e.MarkSuccess("msg-123")
	if !e.IsTerminal() || e.ExternalID != "msg-123" || e.ErrorMessage != "" {
		t.Errorf("after success: %+v", e)
	}
}

func TestEntry_Backoff(t *testing.T) {
	base, max := time.Second, 10*time.Second
	now := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		e := outbox.Entry{Attempts: tt.attempts}
		if got := e.NextRetryDelay(base, max); got != tt.want {
			t.Errorf("attempts=%d: delay = %v, want %v", tt.attempts, got, tt.want)
		}
	}

	e := outbox.Entry{}
	if !e.Due(now, base, max) {
		t.Error("fresh entry should be due")
	}
	e.MarkAttempt(now)
	if e.Due(now.Add(time.Second), base, max) {
		t.Error("entry due before its backoff elapsed")
	}
	if !e.Due(now.Add(2*time.Second), base, max) {
		t.Error("entry not due after its backoff elapsed")
	}
}

func TestEntry_ValidateDefaultsMaxAttempts(t *testing.T) {
	e := outbox.Entry{ActionType: outbox.ActionTypeEmail, Payload: "{}", CreatedAt: time.Now()}
	if err := e.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if e.MaxAttempts != outbox.DefaultMaxAttempts {
		t.Errorf("MaxAttempts = %d", e.MaxAttempts)
	}
	if err := (&outbox.Entry{Payload: "{}"}).Validate(); !errors.Is(err, outbox.ErrEmptyActionType) {
		t.Errorf("err = %v", err)
	}
}

func TestEntry_Requeue(t *testing.T) {
	now := time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)
	e := outbox.Entry{Status: outbox.StatusRetrying, MaxAttempts: 1}
	if err := e.Requeue(); !errors.Is(err, outbox.ErrNotFailed) {
		t.Fatalf("Requeue on retrying entry = %v, want ErrNotFailed", err)
	}

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("smtp down"))
	if e.Status != outbox.StatusFailed {
		t.Fatalf("status = %s, want failed", e.Status)
	}
	if err := e.Requeue(); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if e.Status != outbox.StatusPending || e.Attempts != 0 || !e.LastAttemptedAt.IsZero() {
		t.Errorf("requeued entry = %+v", e)
	}
	if e.ErrorMessage != "smtp down" {
		t.Errorf("error message lost: %q", e.ErrorMessage)
	}
	if !e.Due(now, time.Minute, time.Hour) {
		t.Error("requeued entry should be due at once")
	}
}

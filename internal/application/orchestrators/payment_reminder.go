package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gymroster/internal/domain/outbox"
)

// ErrMissingData is returned when a reminder has no month or no recipients.
var ErrMissingData = errors.New("month and recipients are required")

// PaymentReminderSubject returns the reminder subject for month.
func PaymentReminderSubject(month string) string {
	return "Promemoria pagamento mese " + month
}

// PaymentReminderBody returns the reminder text for month.
func PaymentReminderBody(month string) string {
	return "Ciao, stanno per scadere i termini di pagamento, ti ricordiamo di saldare il mese di " + month + "."
}

// SendPaymentReminderInput carries input for SendPaymentReminder.
type SendPaymentReminderInput struct {
	Month  string
	Emails []string
}

// SendPaymentReminderResult lists the queued and refused addresses.
type SendPaymentReminderResult struct {
	Sent    []string
	Failed  []string
	Message string
}

// SendPaymentReminderDeps holds dependencies for SendPaymentReminder.
type SendPaymentReminderDeps struct {
	Outbox     OutboxWriter
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteSendPaymentReminder queues one reminder email per address.
// Delivery happens later through the outbox worker.
// PRE: Month is non-empty and Emails holds at least one address
// POST: every address is in exactly one of Sent or Failed
func ExecuteSendPaymentReminder(ctx context.Context, input SendPaymentReminderInput, deps SendPaymentReminderDeps) (SendPaymentReminderResult, error) {
	monthKey := strings.TrimSpace(input.Month)
	if monthKey == "" || len(input.Emails) == 0 {
		return SendPaymentReminderResult{}, ErrMissingData
	}

	res := SendPaymentReminderResult{Sent: []string{}, Failed: []string{}}
	for _, addr := range input.Emails {
		entry, err := outbox.NewEmailEntry(deps.GenerateID(), outbox.EmailPayload{
			Kind:    outbox.KindPaymentReminder,
			To:      strings.TrimSpace(addr),
			Subject: PaymentReminderSubject(monthKey),
			Body:    PaymentReminderBody(monthKey),
		}, deps.Now())
		if err == nil {
			err = deps.Outbox.Save(ctx, entry)
		}
		if err != nil {
			slog.Warn("payment_reminder_enqueue_failed", "to", addr, "error", err)
			res.Failed = append(res.Failed, addr)
			continue
		}
		res.Sent = append(res.Sent, addr)
	}
	res.Message = fmt.Sprintf("Inviate %d mail, fallite %d", len(res.Sent), len(res.Failed))
	slog.Info("payment_reminders_queued", "month", monthKey, "sent", len(res.Sent), "failed", len(res.Failed))
	return res, nil
}

package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	emailAdapter "gymroster/internal/adapters/email"
	outboxStore "gymroster/internal/adapters/storage/outbox"
	domain "gymroster/internal/domain/outbox"
)

// OutboxProcessor executes queued outbox entries with exponential backoff.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
	now       func() time.Time
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the action with the given payload and returns the
	// provider's id for it.
	Execute(ctx context.Context, payload string) (string, error)
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 20,
		now:       time.Now,
	}
}

// ProcessPending runs every due pending entry once.
// PRE: Context is valid
// POST: due entries are attempted and saved; returns how many were attempted
func (p *OutboxProcessor) ProcessPending(ctx context.Context) (int, error) {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending outbox entries: %w", err)
	}

	attempted := 0
	for _, entry := range entries {
		if !entry.Due(p.now(), p.baseDelay, p.maxDelay) {
			continue
		}
		attempted++
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
	}
	return attempted, nil
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry) error {
	executor, ok := p.executors[entry.ActionType]
	entry.MarkAttempt(p.now())
	if !ok {
		entry.MaxAttempts = entry.Attempts
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		return p.store.Save(ctx, entry)
	}

	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err.Error())
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return p.store.Save(ctx, entry)
}

// AbandonEntry stops an entry from being attempted again.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned; delivered entries are left alone
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == domain.StatusDone {
		return domain.ErrAlreadyDone
	}
	entry.MarkAbandoned()
	slog.Info("outbox_entry_abandoned", "entry_id", entry.ID, "action_type", entry.ActionType)
	return p.store.Save(ctx, entry)
}

// RetryEntry requeues a failed entry and attempts it right away.
// PRE: entryID names a failed entry
// POST: the entry was attempted once; its saved status reflects the outcome
func (p *OutboxProcessor) RetryEntry(ctx context.Context, entryID string) (domain.Entry, error) {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("get outbox entry: %w", err)
	}
	if err := entry.Requeue(); err != nil {
		return entry, err
	}
	if err := p.processEntry(ctx, entry); err != nil {
		return entry, err
	}
	return p.store.GetByID(ctx, entryID)
}

// ListFailed returns entries that exhausted their attempts, most recent first.
func (p *OutboxProcessor) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return p.store.ListFailed(ctx, limit)
}

// ListPending returns entries still waiting for delivery, oldest first.
func (p *OutboxProcessor) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	return p.store.ListPending(ctx, limit)
}

// EmailExecutor delivers email entries. The markdown body is sent as HTML
// with the markdown itself as the text part.
type EmailExecutor struct {
	Sender emailAdapter.Sender
}

// Execute sends the email described by payload.
// PRE: payload is a JSON outbox.EmailPayload
// POST: returns the provider's message id
// INVARIANT: outbox entry status managed by caller
func (e *EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	entry := domain.Entry{Payload: payload}
	p, err := entry.EmailPayload()
	if err != nil {
		return "", fmt.Errorf("decode email payload: %w", err)
	}
	res, err := e.Sender.Send(ctx, emailAdapter.FromMarkdown(p.To, p.Subject, p.Body))
	if err != nil {
		return "", err
	}
	slog.Info("email_delivered", "kind", p.Kind, "to", p.To, "message_id", res.MessageID)
	return res.MessageID, nil
}

// StartBackgroundWorker periodically processes pending outbox entries
// until stopCh is closed. The returned WaitGroup is done once the worker
// has exited.
func StartBackgroundWorker(processor *OutboxProcessor, interval time.Duration, stopCh <-chan struct{}) *sync.WaitGroup {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if _, err := processor.ProcessPending(ctx); err != nil {
					slog.Error("outbox_background_process_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
	return &wg
}

package email

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NoopSender logs messages instead of delivering them. It is used when no
// provider key is configured, and keeps what it was given for tests.
type NoopSender struct {
	mu   sync.Mutex
	sent []SendRequest
	fail map[string]error
}

// NewNoopSender creates a NoopSender.
func NewNoopSender() *NoopSender {
	return &NoopSender{fail: make(map[string]error)}
}

// FailFor makes every later send to address return err.
func (s *NoopSender) FailFor(address string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[address] = err
}

// Send records and logs req.
// POST: returns a synthetic message id unless a failure is set for a recipient
func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	if len(req.To) == 0 {
		return SendResult{}, ErrNoRecipient
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, to := range req.To {
		if err := s.fail[to]; err != nil {
			return SendResult{}, err
		}
	}
	s.sent = append(s.sent, req)
	slog.Info("noop_email_send", "to", req.To, "subject", req.Subject)
	return SendResult{MessageID: "noop-" + uuid.NewString(), SentAt: time.Now()}, nil
}

// Sent returns a copy of every delivered request.
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SendRequest, len(s.sent))
	copy(out, s.sent)
	return out
}

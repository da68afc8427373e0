// Package email delivers the roster store's outgoing mail.
package email

import (
	"context"
	"time"
)

// SendRequest is one message to deliver.
type SendRequest struct {
	To      []string
	From    string // empty uses the sender's default address
	Subject string
	HTML    string
	Text    string // plain text alternative, optional
	ReplyTo string
}

// SendResult is the provider's receipt.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers messages through an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

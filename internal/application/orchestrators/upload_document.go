package orchestrators

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"gymroster/internal/domain/member"
	"gymroster/internal/domain/outbox"
)

// DocumentMemberStore defines the member store interface needed by UploadDocument.
type DocumentMemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
	SetDocument(ctx context.Context, id, documentPath string) error
}

// DocumentWriter stores uploaded files.
type DocumentWriter interface {
	Save(ctx context.Context, userID, filename string, content io.Reader) (string, error)
}

// OutboxWriter queues outgoing actions.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// Upload errors.
var (
	ErrNoFilename     = errors.New("file has no name")
	ErrMemberNotFound = errors.New("member not found")
)

// Document notice text.
const (
	DocumentNoticeSubject = "Hai ricevuto un file dalla Gymnica Fitness Club"
	documentNoticeBody    = "Ciao %s,\n\nHai ricevuto un file dalla Gymnica Fitness Club. Puoi scaricarlo dal tuo profilo."
)

// UploadDocumentInput carries input for UploadDocument.
type UploadDocumentInput struct {
	MemberID string
	Filename string
	Content  io.Reader
}

// UploadDocumentDeps holds dependencies for UploadDocument.
type UploadDocumentDeps struct {
	MemberStore DocumentMemberStore
	Documents   DocumentWriter
	Outbox      OutboxWriter
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteUploadDocument stores a file as the member's document and queues
// a notice to the member's email.
// PRE: MemberID names a stored member; Filename is non-empty
// POST: the member's document is the stored file; a notice entry is pending
// when the member has an email
func ExecuteUploadDocument(ctx context.Context, input UploadDocumentInput, deps UploadDocumentDeps) (string, error) {
	if strings.TrimSpace(input.Filename) == "" || input.Content == nil {
		return "", ErrNoFilename
	}
	m, err := deps.MemberStore.GetByID(ctx, input.MemberID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrMemberNotFound
	}
	if err != nil {
		return "", err
	}

	name, err := deps.Documents.Save(ctx, m.ID, input.Filename, input.Content)
	if err != nil {
		return "", fmt.Errorf("storing document: %w", err)
	}
	if err := deps.MemberStore.SetDocument(ctx, m.ID, name); err != nil {
		return "", fmt.Errorf("recording document: %w", err)
	}
	slog.Info("document_stored", "member_id", m.ID, "document", name)

	if m.Email != "" {
		greeting := m.FullName
		if greeting == "" {
			greeting = m.Email
		}
		entry, err := outbox.NewEmailEntry(deps.GenerateID(), outbox.EmailPayload{
			Kind:    outbox.KindDocumentNotice,
			To:      m.Email,
			Subject: DocumentNoticeSubject,
			Body:    fmt.Sprintf(documentNoticeBody, greeting),
		}, deps.Now())
		if err == nil {
			err = deps.Outbox.Save(ctx, entry)
		}
		if err != nil {
			slog.Error("document_notice_enqueue_failed", "member_id", m.ID, "error", err)
		}
	}
	return name, nil
}

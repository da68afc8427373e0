package member

import (
	"context"

	domain "gymroster/internal/domain/member"
)

// Store persists Member state.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Member, error)
	GetByEmail(ctx context.Context, email string) (domain.Member, error)
	Save(ctx context.Context, value domain.Member) error
	SetDocument(ctx context.Context, id, documentPath string) error
	List(ctx context.Context) ([]domain.Member, error)
}

package ports

import (
	"context"

	"livepush/internal/core/domain"
)

// SessionRepository persists streaming session summaries.
type SessionRepository interface {
	Save(ctx context.Context, record *domain.SessionRecord) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*domain.SessionRecord, error)
}

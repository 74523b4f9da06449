package memory

import (
	"context"
	"sync"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
)

type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*domain.SessionRecord
	order    []domain.SessionID
}

func NewMemorySessionRepository() ports.SessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[domain.SessionID]*domain.SessionRecord),
	}
}

func (r *MemorySessionRepository) Save(ctx context.Context, record *domain.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[record.ID]; !exists {
		r.order = append(r.order, record.ID)
	}
	copied := *record
	r.sessions[record.ID] = &copied
	return nil
}

func (r *MemorySessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}
	copied := *record
	return &copied, nil
}

func (r *MemorySessionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.order) {
		limit = len(r.order)
	}

	// Newest first.
	records := make([]*domain.SessionRecord, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(records) < limit; i-- {
		if record, ok := r.sessions[r.order[i]]; ok {
			copied := *record
			records = append(records, &copied)
		}
	}
	return records, nil
}

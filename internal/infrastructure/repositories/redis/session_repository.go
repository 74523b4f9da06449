package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"livepush/internal/core/domain"
	"livepush/internal/core/ports"
	"livepush/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// maxRecentSessions bounds the recent-sessions index.
const maxRecentSessions = 100

// RedisSessionRepository persists session summaries in Redis. All
// operations go through a circuit breaker so a slow or dead Redis cannot
// stall the streaming pipeline.
type RedisSessionRepository struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	prefix  string
}

func NewRedisSessionRepository(client *redis.Client) ports.SessionRepository {
	return &RedisSessionRepository{
		client:  client,
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		prefix:  "livepush:session:",
	}
}

func (r *RedisSessionRepository) sessionKey(id domain.SessionID) string {
	return r.prefix + string(id)
}

func (r *RedisSessionRepository) recentKey() string {
	return r.prefix + "recent"
}

func (r *RedisSessionRepository) Save(ctx context.Context, record *domain.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	return r.breaker.Execute(ctx, func() error {
		key := r.sessionKey(record.ID)
		if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
			return fmt.Errorf("failed to set session in Redis: %w", err)
		}

		recentKey := r.recentKey()
		if err := r.client.LPush(ctx, recentKey, string(record.ID)).Err(); err != nil {
			return fmt.Errorf("failed to index session: %w", err)
		}
		if err := r.client.LTrim(ctx, recentKey, 0, maxRecentSessions-1).Err(); err != nil {
			return fmt.Errorf("failed to trim session index: %w", err)
		}
		return nil
	})
}

func (r *RedisSessionRepository) GetByID(ctx context.Context, id domain.SessionID) (*domain.SessionRecord, error) {
	var record *domain.SessionRecord

	err := r.breaker.Execute(ctx, func() error {
		data, err := r.client.Get(ctx, r.sessionKey(id)).Result()
		if err == redis.Nil {
			return domain.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get session from Redis: %w", err)
		}

		var rec domain.SessionRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal session record: %w", err)
		}
		record = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *RedisSessionRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SessionRecord, error) {
	if limit <= 0 || limit > maxRecentSessions {
		limit = maxRecentSessions
	}

	var records []*domain.SessionRecord
	err := r.breaker.Execute(ctx, func() error {
		ids, err := r.client.LRange(ctx, r.recentKey(), 0, int64(limit-1)).Result()
		if err != nil {
			return fmt.Errorf("failed to list recent sessions: %w", err)
		}

		for _, id := range ids {
			data, err := r.client.Get(ctx, r.sessionKey(domain.SessionID(id))).Result()
			if err != nil {
				// Skip records that expired or were removed.
				continue
			}
			var rec domain.SessionRecord
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

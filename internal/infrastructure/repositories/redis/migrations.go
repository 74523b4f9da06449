package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const schemaVersionKey = "livepush:schema:version"

type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, client *redis.Client) error
}

// migrations must stay sorted by version.
var migrations = []migration{
	{1, "create recent-session index", ensureRecentIndex},
}

// Migrate brings the storage schema up to date. Versions already applied
// are skipped.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	applied, err := client.Get(ctx, schemaVersionKey).Int()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= applied {
			continue
		}

		logger.Infow("applying storage migration",
			"version", m.version,
			"name", m.name,
		)
		if err := m.apply(ctx, client); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}
		if err := client.Set(ctx, schemaVersionKey, m.version, 0).Err(); err != nil {
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}
	}

	return nil
}

// ensureRecentIndex guarantees the recent-sessions list exists so that
// LRANGE on a fresh instance behaves like an empty history rather than a
// missing key.
func ensureRecentIndex(ctx context.Context, client *redis.Client) error {
	const recentKey = "livepush:session:recent"

	exists, err := client.Exists(ctx, recentKey).Result()
	if err != nil {
		return err
	}
	if exists != 0 {
		return nil
	}

	// LPUSH then LREM leaves an empty list behind.
	if err := client.LPush(ctx, recentKey, "").Err(); err != nil {
		return err
	}
	return client.LRem(ctx, recentKey, 0, "").Err()
}

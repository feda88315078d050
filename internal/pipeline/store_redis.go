package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	platformredis "aumon/internal/platform/redis"
)

const redisRecentKey = "aumon:events:recent"

// RedisStore keeps a capped list of recent records in Redis, newest
// first. It trades durability for cheap cross-process access to the
// live event feed.
type RedisStore struct {
	client *platformredis.Client
	cap    int64
}

// NewRedisStore creates a store retaining at most cap records.
func NewRedisStore(client *platformredis.Client, cap int64) *RedisStore {
	if cap <= 0 {
		cap = 10000
	}
	return &RedisStore{client: client, cap: cap}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Append(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisRecentKey, payload)
	pipe.LTrim(ctx, redisRecentKey, 0, s.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push event record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, most recent first.
func (s *RedisStore) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	raw, err := s.client.LRange(ctx, redisRecentKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("range event records: %w", err)
	}

	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode event record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

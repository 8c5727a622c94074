package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
)

// RedisBackend keeps history in a sorted set scored by emission time in
// milliseconds. Members are JSON-encoded records.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to the Redis instance at url.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisBackend(client, prefix), nil
}

// NewRedisBackend wraps an existing client.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "goalbot"
	}

	return &RedisBackend{client: client, key: prefix + ":history"}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Load(ctx context.Context) ([]domain.HistoryRecord, error) {
	members, err := r.client.ZRangeWithScores(ctx, r.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", r.key, err)
	}

	out := make([]domain.HistoryRecord, 0, len(members))

	for _, m := range members {
		raw, ok := m.Member.(string)
		if !ok {
			continue
		}

		var fr fileRecord
		if err := json.Unmarshal([]byte(raw), &fr); err != nil {
			continue
		}

		key, err := domain.ParseDedupKey(fr.Key)
		if err != nil {
			continue
		}

		out = append(out, domain.HistoryRecord{
			Key:       key,
			SourceURL: fr.SourceURL,
			EmittedAt: time.UnixMilli(int64(m.Score)).UTC(),
		})
	}

	return out, nil
}

func (r *RedisBackend) Append(ctx context.Context, rec domain.HistoryRecord) error {
	data, err := json.Marshal(fileRecord{Key: rec.Key.String(), SourceURL: rec.SourceURL, EmittedAt: rec.EmittedAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	err = r.client.ZAdd(ctx, r.key, redis.Z{Score: float64(rec.EmittedAt.UnixMilli()), Member: string(data)}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", r.key, err)
	}

	return nil
}

func (r *RedisBackend) Prune(ctx context.Context, before time.Time) (int, error) {
	limit := "(" + strconv.FormatInt(before.UnixMilli(), 10)

	n, err := r.client.ZRemRangeByScore(ctx, r.key, "-inf", limit).Result()
	if err != nil {
		return 0, fmt.Errorf("zremrangebyscore %s: %w", r.key, err)
	}

	return int(n), nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}

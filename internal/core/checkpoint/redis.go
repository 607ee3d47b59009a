package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv8 "github.com/go-redis/redis/v8"

	"orderproof/internal/logger"
	rds "orderproof/internal/platform/redis"
)

// RedisStore keeps the log as one JSON value under a key, without expiry.
// Used by the server mode where workers share a Redis instance.
type RedisStore struct {
	redis *rds.Service
	key   string
	log   *logger.Logger
	now   func() time.Time
}

func NewRedisStore(redis *rds.Service, key string) *RedisStore {
	return &RedisStore{redis: redis, key: key, log: logger.New("Checkpoint"), now: time.Now}
}

func (s *RedisStore) Location() string { return "redis:" + s.key }

func (s *RedisStore) Load(ctx context.Context) LoadResult {
	var l Log
	err := s.redis.CacheGet(ctx, s.key, &l)
	if errors.Is(err, redisv8.Nil) {
		return LoadResult{Status: StatusMissing}
	}
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			s.log.LogWarnf("Checkpoint %s is malformed, treating as empty: %v", s.key, err)
		} else {
			s.log.LogWarnf("Could not read checkpoint %s: %v", s.key, err)
		}
		return LoadResult{Status: StatusCorrupt, Err: err}
	}
	return LoadResult{Log: l, Status: StatusLoaded}
}

func (s *RedisStore) Append(ctx context.Context, orderID, reference string) error {
	l := s.Load(ctx).Log
	now := s.now()
	l.Entries = append(l.Entries, Entry{OrderID: orderID, Reference: reference, CompletedAt: now})
	l.UpdatedAt = &now
	if err := s.redis.CacheSet(ctx, s.key, l, 0); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.redis.Client().Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

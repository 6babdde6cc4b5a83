package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is the multi-instance Store implementation for horizontally
// scaled deployments. Window state lives in redis keys with a TTL equal to
// the window length, so the check-and-increment is atomic across instances
// (INCR) and expiry replaces the explicit sweep.
type RedisStore struct {
	client  *redis.Client
	logger  *zap.Logger
	prefix  string
	ceiling int
	window  time.Duration
}

// NewRedisStore creates a redis-backed fixed-window store. The prefix keeps
// the script and image stages on independent counters.
func NewRedisStore(client *redis.Client, logger *zap.Logger, prefix string, ceiling int, window time.Duration) *RedisStore {
	return &RedisStore{
		client:  client,
		logger:  logger,
		prefix:  prefix,
		ceiling: ceiling,
		window:  window,
	}
}

func (s *RedisStore) key(identity string) string {
	return fmt.Sprintf("quota:%s:%s", s.prefix, identity)
}

// Check increments the identity's window counter and compares it against the
// ceiling. The first increment of a window arms the TTL.
func (s *RedisStore) Check(ctx context.Context, identity string) (Decision, error) {
	key := s.key(identity)

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("quota incr: %w", err)
	}
	if n == 1 {
		if err := s.client.PExpire(ctx, key, s.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("quota expire: %w", err)
		}
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// A key without TTL would never reset; re-arm and treat as a fresh window.
		s.logger.Warn("Quota key missing TTL, re-arming window", zap.String("key", key))
		ttl = s.window
		_ = s.client.PExpire(ctx, key, s.window).Err()
	}
	resetAt := time.Now().Add(ttl)

	if n > int64(s.ceiling) {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: s.ceiling - int(n), ResetAt: resetAt}, nil
}

// Sweep is a no-op for redis: key TTLs already bound memory.
func (s *RedisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

// Reset deletes every key of this stage's prefix.
func (s *RedisStore) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("quota:%s:*", s.prefix), 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("quota reset del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("quota reset scan: %w", err)
	}
	return nil
}

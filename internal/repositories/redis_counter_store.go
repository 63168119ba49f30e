package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/go-redis/redis/v8"
)

// incrementScript sets the expiry only when the counter is created, so the
// window starts at the first failure and is not extended by later ones.
var incrementScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounterStore keeps TTL counters and first-sight markers in Redis
type RedisCounterStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCounterStore wraps an existing client. prefix namespaces every key.
func NewRedisCounterStore(client redis.UniversalClient, prefix string) *RedisCounterStore {
	return &RedisCounterStore{client: client, prefix: prefix}
}

// DialRedisCounterStore parses a redis:// URL and verifies the connection
func DialRedisCounterStore(ctx context.Context, url, prefix string) (*RedisCounterStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	store := NewRedisCounterStore(redis.NewClient(opts), prefix)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return store, nil
}

func (s *RedisCounterStore) key(k string) string {
	return s.prefix + k
}

// Increment bumps the counter at key, starting a ttl window if the key is new
func (s *RedisCounterStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrementScript.Run(ctx, s.client, []string{s.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return count, nil
}

// Get returns the counter value; a missing or expired key reports ok=false
func (s *RedisCounterStore) Get(ctx context.Context, key string) (int64, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable(err)
	}

	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("counter %q holds non-integer value: %w", key, err)
	}
	return count, true, nil
}

// MarkSeen atomically sets a marker and reports whether it already existed.
// An existing marker has its ttl refreshed.
func (s *RedisCounterStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k := s.key(key)
	created, err := s.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		return false, unavailable(err)
	}
	if created {
		return false, nil
	}

	if err := s.client.Expire(ctx, k, ttl).Err(); err != nil {
		return true, unavailable(err)
	}
	return true, nil
}

// Delete removes keys; missing keys are ignored
func (s *RedisCounterStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Ping checks connectivity
func (s *RedisCounterStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close releases the underlying client
func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
}

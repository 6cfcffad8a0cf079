package lockout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps attempt counters in Redis, the shared TTL store reached
// by every worker. Expiry is delegated to Redis itself.
type RedisStore struct {
	client *redis.Client
}

var _ CounterStore = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, error) {
	var count *redis.IntCmd
	// NX expiry on every increment: the first failure starts the window,
	// later failures never extend it, and a counter that lost its TTL to a
	// partial earlier write picks one up on the next attempt instead of
	// living forever.
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(count.Val()), nil
}

func (s *RedisStore) Count(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error { return s.client.Close() }

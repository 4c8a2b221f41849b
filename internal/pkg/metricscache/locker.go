package metricscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker on Redis SET NX. Locks expire on their own,
// so a crashed refresh never wedges a business.
type RedisLocker struct {
	client *redis.Client
	owner  string
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, owner: uuid.NewString()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, l.owner, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	// Only release locks we own; an expired lock may belong to someone else.
	val, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != l.owner {
		return nil
	}
	return l.client.Del(ctx, key).Err()
}

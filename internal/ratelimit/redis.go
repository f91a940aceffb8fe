package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mise:ratelimit:"

var incrementScript = redis.NewScript(`
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('HSET', KEYS[1], 'last', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return count
`)

// RedisStore shares records across instances. Keys expire with the lockout window.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	vals, err := r.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	count, err := strconv.Atoi(vals["count"])
	if err != nil {
		return Record{}, false, fmt.Errorf("decode count: %w", err)
	}
	lastMs, err := strconv.ParseInt(vals["last"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("decode last: %w", err)
	}
	return Record{Count: count, LastAttempt: time.UnixMilli(lastMs)}, true, nil
}

func (r *RedisStore) Increment(ctx context.Context, key string, now time.Time, ttl time.Duration) (Record, error) {
	count, err := incrementScript.Run(ctx, r.client, []string{redisKeyPrefix + key}, now.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return Record{}, err
	}
	return Record{Count: count, LastAttempt: time.UnixMilli(now.UnixMilli())}, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, redisKeyPrefix+key).Err()
}

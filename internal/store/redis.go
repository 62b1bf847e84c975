package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/filegate/internal/quota"
)

// markerGrace keeps a redis marker alive a little past token expiry so clock skew cannot reopen it.
const markerGrace = time.Minute

// incrementScript rolls and increments a quota window in one server-side step.
// Times are unix milliseconds. Returns {allowed, count, window_start}.
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local period = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'window_start', 'count')
local start = tonumber(state[1])
local count = tonumber(state[2]) or 0
if start == nil or now - start >= period then
  start = now
  count = 0
end
local allowed = 0
if count < limit then
  count = count + 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'window_start', start, 'count', count)
redis.call('PEXPIRE', KEYS[1], start + period - now)
return {allowed, count, start}
`)

// RedisStore is a Redis implementation of quota.Store and verification.MarkerStore,
// shared by every process that points at the same server.
type RedisStore struct {
	client       *redis.Client
	quotaPrefix  string // "quota:" for userID -> {window_start, count} (hash keys)
	markerPrefix string // "nonce:" for redeemed nonces (string keys with TTL)
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:       client,
		quotaPrefix:  "quota:",
		markerPrefix: "nonce:",
	}
}

func (r *RedisStore) Increment(
	ctx context.Context, userID string, limit int64, period time.Duration, now time.Time,
) (quota.Record, bool, error) {
	res, err := incrementScript.Run(ctx, r.client, []string{r.quotaPrefix + userID},
		now.UnixMilli(), period.Milliseconds(), limit,
	).Int64Slice()
	if err != nil {
		return quota.Record{}, false, err
	}

	if len(res) != 3 {
		return quota.Record{}, false, fmt.Errorf("unexpected script result %v", res)
	}

	return quota.Record{
		UserID:      userID,
		WindowStart: time.UnixMilli(res[2]),
		Count:       res[1],
	}, res[0] == 1, nil
}

func (r *RedisStore) Used(ctx context.Context, nonce string) (bool, error) {
	n, err := r.client.Exists(ctx, r.markerPrefix+nonce).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

func (r *RedisStore) Claim(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	ttl := max(time.Until(expiresAt), 0) + markerGrace

	return r.client.SetNX(ctx, r.markerPrefix+nonce, time.Now().Unix(), ttl).Result()
}

func (r *RedisStore) Release(ctx context.Context, nonce string) error {
	return r.client.Del(ctx, r.markerPrefix+nonce).Err()
}

// Cleanup is a no-op; markers expire through their TTL.
func (r *RedisStore) Cleanup(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// Ping checks Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

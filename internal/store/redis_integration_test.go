//go:build integration

package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/filegate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func TestRedisStoreIntegration(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr: getRedisAddr(),
	})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	s := store.NewRedisStore(client)

	t.Run("increment rolls and limits the window", func(t *testing.T) {
		user := "it-" + uuid.NewString()
		now := time.Now().Truncate(time.Millisecond)

		for i := int64(1); i <= 2; i++ {
			rec, ok, err := s.Increment(ctx, user, 2, time.Hour, now)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, i, rec.Count)
			assert.True(t, now.Equal(rec.WindowStart))
		}

		_, ok, err := s.Increment(ctx, user, 2, time.Hour, now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		rec, ok, err := s.Increment(ctx, user, 2, time.Hour, now.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), rec.Count)

		client.Del(ctx, "quota:"+user)
	})

	t.Run("claim is exclusive and expires", func(t *testing.T) {
		nonce := uuid.NewString()

		ok, err := s.Claim(ctx, nonce, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Claim(ctx, nonce, time.Now().Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		used, err := s.Used(ctx, nonce)
		require.NoError(t, err)
		assert.True(t, used)

		ttl := client.TTL(ctx, "nonce:"+nonce).Val()
		assert.Greater(t, ttl, time.Minute)

		require.NoError(t, s.Release(ctx, nonce))

		used, _ = s.Used(ctx, nonce)
		assert.False(t, used)
	})

	t.Run("rate limit store counts within window", func(t *testing.T) {
		rl := store.NewRateLimitRedisStore(client)
		key := uuid.NewString()

		for i := int64(1); i <= 3; i++ {
			count, err := rl.Record(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, i, count)
		}

		client.Del(ctx, "ratelimit:"+key)
	})
}

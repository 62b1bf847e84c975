package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/filegate/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMemoryStore_Increment(t *testing.T) {
	ctx := context.Background()

	t.Run("counts up to the limit within a window", func(t *testing.T) {
		s := store.NewMemoryStore()

		for i := int64(1); i <= 3; i++ {
			rec, ok, err := s.Increment(ctx, "u1", 3, time.Hour, epoch.Add(time.Duration(i)*time.Minute))

			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, i, rec.Count)
			assert.Equal(t, epoch.Add(time.Minute), rec.WindowStart)
		}

		rec, ok, err := s.Increment(ctx, "u1", 3, time.Hour, epoch.Add(10*time.Minute))

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int64(3), rec.Count)
	})

	t.Run("rolls the window once the period elapsed", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _, _ = s.Increment(ctx, "u1", 1, time.Hour, epoch)

		_, ok, _ := s.Increment(ctx, "u1", 1, time.Hour, epoch.Add(59*time.Minute))
		assert.False(t, ok)

		rec, ok, err := s.Increment(ctx, "u1", 1, time.Hour, epoch.Add(time.Hour))

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(1), rec.Count)
		assert.Equal(t, epoch.Add(time.Hour), rec.WindowStart)
	})

	t.Run("tracks users independently", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _, _ = s.Increment(ctx, "u1", 1, time.Hour, epoch)

		rec, ok, err := s.Increment(ctx, "u2", 1, time.Hour, epoch)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "u2", rec.UserID)
	})

	t.Run("concurrent increments never exceed the limit", func(t *testing.T) {
		s := store.NewMemoryStore()

		var (
			wg      sync.WaitGroup
			granted atomic.Int64
		)

		for range 50 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if _, ok, _ := s.Increment(ctx, "u1", 5, time.Hour, epoch); ok {
					granted.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, int64(5), granted.Load())
	})
}

func TestMemoryStore_Markers(t *testing.T) {
	ctx := context.Background()

	t.Run("claim is exclusive", func(t *testing.T) {
		s := store.NewMemoryStore()

		used, err := s.Used(ctx, "n1")
		require.NoError(t, err)
		assert.False(t, used)

		ok, err := s.Claim(ctx, "n1", epoch.Add(time.Hour))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Claim(ctx, "n1", epoch.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		used, _ = s.Used(ctx, "n1")
		assert.True(t, used)
	})

	t.Run("release reopens the nonce", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _ = s.Claim(ctx, "n1", epoch.Add(time.Hour))
		require.NoError(t, s.Release(ctx, "n1"))

		ok, err := s.Claim(ctx, "n1", epoch.Add(time.Hour))

		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("cleanup removes only expired markers", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _ = s.Claim(ctx, "old", epoch)
		_, _ = s.Claim(ctx, "fresh", epoch.Add(2*time.Hour))

		removed, err := s.Cleanup(ctx, epoch.Add(time.Hour))

		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		used, _ := s.Used(ctx, "old")
		assert.False(t, used)

		used, _ = s.Used(ctx, "fresh")
		assert.True(t, used)
	})

	t.Run("concurrent claims have a single winner", func(t *testing.T) {
		s := store.NewMemoryStore()

		var (
			wg      sync.WaitGroup
			winners atomic.Int64
		)

		for range 20 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if ok, _ := s.Claim(ctx, "n1", epoch.Add(time.Hour)); ok {
					winners.Add(1)
				}
			}()
		}

		wg.Wait()

		assert.Equal(t, int64(1), winners.Load())
	})
}

package store

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

// RateLimitMemoryStore is a single-instance ratelimit.Store. Clients that stop sending
// requests are forgotten once their newest request leaves the longest window seen.
type RateLimitMemoryStore struct {
	mu        sync.Mutex
	requests  map[string][]time.Time
	longest   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// RateLimitOption customizes a RateLimitMemoryStore.
type RateLimitOption func(*RateLimitMemoryStore)

// WithRateLimitClock overrides the time source.
func WithRateLimitClock(now func() time.Time) RateLimitOption {
	return func(s *RateLimitMemoryStore) {
		s.now = now
	}
}

func NewRateLimitMemoryStore(opts ...RateLimitOption) *RateLimitMemoryStore {
	s := &RateLimitMemoryStore{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.lastSweep = s.now()

	return s
}

func (s *RateLimitMemoryStore) Record(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.longest = max(s.longest, window)

	kept := prune(s.requests[key], now.Add(-window))
	kept = append(kept, now)
	s.requests[key] = kept

	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}

	return int64(len(kept)), nil
}

// Keys returns how many clients are currently tracked.
func (s *RateLimitMemoryStore) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

func (s *RateLimitMemoryStore) sweep(now time.Time) {
	cutoff := now.Add(-s.longest)

	for key, timestamps := range s.requests {
		if !timestamps[len(timestamps)-1].After(cutoff) {
			delete(s.requests, key)
		}
	}

	s.lastSweep = now
}

// prune drops timestamps at or before cutoff. Timestamps are appended in order.
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range timestamps {
		if ts.After(cutoff) {
			return timestamps[i:]
		}
	}

	return timestamps[:0]
}

package ratelimit

import (
	"context"
	"time"
)

// Store keeps request timestamps per key.
type Store interface {
	// Record adds a request at the current time, prunes entries older than window
	// and returns how many remain.
	Record(ctx context.Context, key string, window time.Duration) (count int64, err error)
}

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// LimitExceeded describes the first limit a request broke.
type LimitExceeded struct {
	Route  string
	Config LimitConfig
	Count  int64
}

// RetryAfter is an upper bound on how long the client has to wait.
func (e *LimitExceeded) RetryAfter() time.Duration {
	return e.Config.Window
}

// Limiter applies sliding-window limits per client and route.
// This throttles request volume and is unrelated to the per-user download quota.
type Limiter struct {
	store    Store
	defaults []LimitConfig
}

// NewLimiter creates a limiter that falls back to defaults for routes without their own limits.
func NewLimiter(store Store, defaults ...LimitConfig) *Limiter {
	return &Limiter{
		store:    store,
		defaults: defaults,
	}
}

// Allow records a request for clientKey on route against limits, or the defaults when limits is empty.
// When the request is refused, exceeded names the limit that was hit.
func (l *Limiter) Allow(
	ctx context.Context,
	clientKey, route string,
	limits []LimitConfig,
) (allowed bool, exceeded *LimitExceeded, err error) {
	if len(limits) == 0 {
		limits = l.defaults
	}

	for _, limit := range limits {
		key := fmt.Sprintf("%s:%s:%d", clientKey, route, limit.Window.Milliseconds())

		count, err := l.store.Record(ctx, key, limit.Window)
		if err != nil {
			return false, nil, fmt.Errorf("record request: %w", err)
		}

		if count > limit.Max {
			return false, &LimitExceeded{Route: route, Config: limit, Count: count}, nil
		}
	}

	return true, nil, nil
}

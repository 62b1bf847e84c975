package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/serroba/filegate/internal/metrics"
)

// Unlimited is reported as Remaining when no limit is configured.
const Unlimited int64 = -1

// Record is the persisted per-user window.
type Record struct {
	UserID      string
	WindowStart time.Time
	Count       int64
}

// Store persists quota records. Increment must be a single atomic step per user:
// roll the window when now-WindowStart >= period, then increment only if Count < limit.
// It returns the record after the operation and whether the increment happened.
type Store interface {
	Increment(ctx context.Context, userID string, limit int64, period time.Duration, now time.Time) (Record, bool, error)
}

// Decision is the outcome of CheckAndIncrement.
type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Ledger enforces a rolling per-user download quota.
type Ledger struct {
	store Store
	now   func() time.Time
}

// NewLedger creates a ledger over store. A nil now uses time.Now.
func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}

	return &Ledger{store: store, now: now}
}

// CheckAndIncrement consumes one download slot for userID if the current window allows it.
// A limit <= 0 disables the quota.
func (l *Ledger) CheckAndIncrement(ctx context.Context, userID string, limit int64, period time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Remaining: Unlimited}, nil
	}

	now := l.now()

	rec, ok, err := l.store.Increment(ctx, userID, limit, period, now)
	if err != nil {
		return Decision{}, fmt.Errorf("increment quota: %w", err)
	}

	if !ok {
		metrics.QuotaDecisionsTotal.WithLabelValues("denied").Inc()

		return Decision{
			Count:      rec.Count,
			RetryAfter: max(rec.WindowStart.Add(period).Sub(now), 0),
		}, nil
	}

	metrics.QuotaDecisionsTotal.WithLabelValues("allowed").Inc()

	return Decision{
		Allowed:   true,
		Count:     rec.Count,
		Remaining: max(limit-rec.Count, 0),
	}, nil
}

// Apply is the reference window rollover used by in-process stores.
func Apply(rec Record, limit int64, period time.Duration, now time.Time) (Record, bool) {
	if rec.WindowStart.IsZero() || now.Sub(rec.WindowStart) >= period {
		rec.WindowStart = now
		rec.Count = 0
	}

	if rec.Count >= limit {
		return rec, false
	}

	rec.Count++

	return rec, true
}

package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/filegate/internal/quota"
)

// MemoryStore is an in-memory implementation of quota.Store and verification.MarkerStore.
// It is only consistent within a single process.
type MemoryStore struct {
	mu      sync.Mutex
	quotas  map[string]quota.Record // userID -> window
	markers map[string]time.Time    // nonce -> token expiry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotas:  make(map[string]quota.Record),
		markers: make(map[string]time.Time),
	}
}

func (m *MemoryStore) Increment(
	_ context.Context, userID string, limit int64, period time.Duration, now time.Time,
) (quota.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := quota.Apply(m.quotas[userID], limit, period, now)
	rec.UserID = userID
	m.quotas[userID] = rec

	return rec, ok, nil
}

func (m *MemoryStore) Used(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.markers[nonce]

	return ok, nil
}

func (m *MemoryStore) Claim(_ context.Context, nonce string, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.markers[nonce]; ok {
		return false, nil
	}

	m.markers[nonce] = expiresAt

	return true, nil
}

func (m *MemoryStore) Release(_ context.Context, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.markers, nonce)

	return nil
}

// Cleanup drops markers whose token expired before now.
func (m *MemoryStore) Cleanup(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64

	for nonce, expiresAt := range m.markers {
		if expiresAt.Before(now) {
			delete(m.markers, nonce)

			removed++
		}
	}

	return removed, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/filegate/internal/quota"
)

// Schema creates the tables used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS download_quotas (
	user_id         TEXT PRIMARY KEY,
	window_start_ms BIGINT NOT NULL,
	download_count  BIGINT NOT NULL
);

ALTER TABLE download_quotas ADD COLUMN IF NOT EXISTS last_granted BOOLEAN NOT NULL DEFAULT true;

CREATE TABLE IF NOT EXISTS redeemed_nonces (
	nonce       TEXT PRIMARY KEY,
	expires_at  TIMESTAMPTZ NOT NULL,
	redeemed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS redeemed_nonces_expires_at_idx ON redeemed_nonces (expires_at);
`

// PostgresStore is a PostgreSQL implementation of quota.Store and verification.MarkerStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (p *PostgresStore) Increment(
	ctx context.Context, userID string, limit int64, period time.Duration, now time.Time,
) (quota.Record, bool, error) {
	// One upsert decides rollover and the limit against the locked row and
	// returns that row either way. A denied call rewrites the row unchanged.
	query := `
		INSERT INTO download_quotas AS q (user_id, window_start_ms, download_count, last_granted)
		VALUES ($1, $2, 1, true)
		ON CONFLICT (user_id) DO UPDATE SET
			window_start_ms = CASE WHEN $2 - q.window_start_ms >= $3 THEN $2 ELSE q.window_start_ms END,
			download_count  = CASE
				WHEN $2 - q.window_start_ms >= $3 THEN 1
				WHEN q.download_count < $4 THEN q.download_count + 1
				ELSE q.download_count
			END,
			last_granted    = ($2 - q.window_start_ms >= $3 OR q.download_count < $4)
		RETURNING window_start_ms, download_count, last_granted
	`

	rec := quota.Record{UserID: userID}

	var (
		startMs int64
		granted bool
	)

	err := p.pool.QueryRow(ctx, query, userID, now.UnixMilli(), period.Milliseconds(), limit).
		Scan(&startMs, &rec.Count, &granted)
	if err != nil {
		return quota.Record{}, false, err
	}

	rec.WindowStart = time.UnixMilli(startMs)

	return rec, granted, nil
}

func (p *PostgresStore) Used(ctx context.Context, nonce string) (bool, error) {
	var used bool

	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM redeemed_nonces WHERE nonce = $1)`, nonce,
	).Scan(&used)

	return used, err
}

func (p *PostgresStore) Claim(ctx context.Context, nonce string, expiresAt time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO redeemed_nonces (nonce, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (nonce) DO NOTHING
	`, nonce, expiresAt)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (p *PostgresStore) Release(ctx context.Context, nonce string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM redeemed_nonces WHERE nonce = $1`, nonce)

	return err
}

// Cleanup deletes markers whose token expired before now.
func (p *PostgresStore) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM redeemed_nonces WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// Ping checks database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

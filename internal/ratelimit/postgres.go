package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the slice of pgxpool.Pool the limiter needs.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLimiter is a fixed-window counter kept in the rate_limits table.
// Keys are hashed before storage so raw IPs and emails never land in the
// database.
type PostgresLimiter struct {
	db  querier
	now func() time.Time
}

func NewPostgresLimiter(pool *pgxpool.Pool) *PostgresLimiter {
	return &PostgresLimiter{db: pool, now: time.Now}
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

// allowQuery opens a fresh window ($2 = now) on first hit or when the stored
// window started before the cutoff ($3 = now - window); otherwise it bumps the
// running count. The whole read-modify-write is one statement so two racing
// requests cannot both see the pre-increment count.
const allowQuery = `
	INSERT INTO rate_limits (rl_key, count, window_start, expires_at)
	VALUES ($1, 1, $2, $4)
	ON CONFLICT (rl_key) DO UPDATE SET
		count = CASE
			WHEN rate_limits.window_start < $3 THEN 1
			ELSE rate_limits.count + 1
		END,
		window_start = CASE
			WHEN rate_limits.window_start < $3 THEN $2
			ELSE rate_limits.window_start
		END,
		expires_at = $4
	RETURNING count`

// Allow atomically bumps the counter for key and reports whether it is still
// within limit. Errors propagate; the caller decides what a broken limiter
// means.
func (l *PostgresLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := l.now()
	var count int
	err := l.db.QueryRow(ctx, allowQuery,
		hashKey(key), now, now.Add(-window), now.Add(window),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count <= limit, nil
}

// Reset drops every counter.
func (l *PostgresLimiter) Reset(ctx context.Context) error {
	const q = `DELETE FROM rate_limits`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := l.db.Exec(ctx, q)
	return err
}

// CleanupExpired removes counters whose window has long passed. Run
// periodically; correctness does not depend on it.
func (l *PostgresLimiter) CleanupExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM rate_limits WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := l.db.Exec(ctx, q)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGSERIAL PRIMARY KEY,
		start_ts BIGINT NOT NULL,
		end_ts BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		space TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_ts BIGINT NOT NULL,
		created_ip TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'CONFIRMED',
		edit_token TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_interval ON bookings (start_ts, end_ts)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_edit_token
		ON bookings (edit_token) WHERE edit_token IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS pending_bookings (
		id BIGSERIAL PRIMARY KEY,
		start_ts BIGINT NOT NULL,
		end_ts BIGINT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		space TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		code_hash TEXT NOT NULL,
		code_expires_ts BIGINT NOT NULL,
		attempts INT NOT NULL DEFAULT 0,
		created_ts BIGINT NOT NULL,
		created_ip TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS recurring_rules (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		space TEXT NOT NULL,
		dow INT NOT NULL,
		start_min INT NOT NULL,
		end_min INT NOT NULL,
		start_date BIGINT NOT NULL,
		end_date BIGINT NOT NULL,
		created_ts BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS recurring_exceptions (
		rule_id BIGINT NOT NULL REFERENCES recurring_rules(id) ON DELETE CASCADE,
		date_ts BIGINT NOT NULL,
		created_ts BIGINT NOT NULL,
		PRIMARY KEY (rule_id, date_ts)
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS rate_limits (
		rl_key TEXT PRIMARY KEY,
		count INT NOT NULL,
		window_start TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS email_tokens (
		token TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		created_ts BIGINT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
		id BIGSERIAL PRIMARY KEY,
		ts BIGINT NOT NULL,
		action TEXT NOT NULL,
		actor TEXT NOT NULL,
		ip TEXT NOT NULL DEFAULT '',
		details JSONB
	)`,
}

// Migrate creates the schema. Every statement is idempotent, so running it on
// every start is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

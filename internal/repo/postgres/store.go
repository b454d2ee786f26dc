package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/schedule"
)

// bookingWritesLock is the advisory lock key every booking-write transaction
// takes, serializing check-and-insert sequences across connections.
const bookingWritesLock = 874002141

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same query methods serve both the pool-backed store and its transaction
// view.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements the engine's storage interface on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx runs fn inside a transaction holding the booking-writes advisory
// lock. The lock releases on commit or rollback, so of two racing writers the
// second re-runs its checks against the first one's committed state.
func (s *Store) WithTx(ctx context.Context, fn func(q schedule.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bookingWritesLock); err != nil {
		return err
	}
	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func spaceStrings(spaces []domain.Space) []string {
	out := make([]string, len(spaces))
	for i, sp := range spaces {
		out[i] = string(sp)
	}
	return out
}

func (s *Store) HasOverlappingBooking(ctx context.Context, start, end int64, spaces []domain.Space, excludeID int64) (bool, error) {
	const q = `SELECT EXISTS (
		SELECT 1 FROM bookings
		WHERE status = 'CONFIRMED'
		  AND space = ANY($1)
		  AND start_ts < $3 AND end_ts > $2
		  AND id <> $4
	)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var busy bool
	err := s.db.QueryRow(ctx, q, spaceStrings(spaces), start, end, excludeID).Scan(&busy)
	return busy, err
}

const ruleCols = `id, title, space, dow, start_min, end_min, start_date, end_date, created_ts`

func scanRules(rows pgx.Rows) ([]domain.RecurringRule, error) {
	defer rows.Close()
	var rules []domain.RecurringRule
	for rows.Next() {
		var r domain.RecurringRule
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Space, &r.Weekday,
			&r.StartMin, &r.EndMin, &r.StartDate, &r.EndDate, &r.CreatedTs,
		); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) RulesIntersecting(ctx context.Context, fromDate, toDate int64, spaces []domain.Space) ([]domain.RecurringRule, error) {
	q := `SELECT ` + ruleCols + ` FROM recurring_rules WHERE start_date <= $2 AND end_date >= $1`
	args := []any{fromDate, toDate}
	if spaces != nil {
		q += ` AND space = ANY($3)`
		args = append(args, spaceStrings(spaces))
	}
	q += ` ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *Store) RuleExceptions(ctx context.Context, ruleID int64) (map[int64]struct{}, error) {
	const q = `SELECT date_ts FROM recurring_exceptions WHERE rule_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts] = struct{}{}
	}
	return out, rows.Err()
}

const bookingCols = `id, start_ts, end_ts, name, email, space, note,
created_ts, created_ip, status, COALESCE(edit_token, '')`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.StartTs, &b.EndTs, &b.Name, &b.Email, &b.Space, &b.Note,
		&b.CreatedTs, &b.CreatedIP, &b.Status, &b.EditToken,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()
	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(
			&b.ID, &b.StartTs, &b.EndTs, &b.Name, &b.Email, &b.Space, &b.Note,
			&b.CreatedTs, &b.CreatedIP, &b.Status, &b.EditToken,
		); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *Store) ListBookings(ctx context.Context, from, to int64) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
		WHERE status = 'CONFIRMED' AND start_ts < $2 AND end_ts > $1
		ORDER BY start_ts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q, from, to)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (s *Store) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanBooking(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetBookingByEditToken(ctx context.Context, token string) (*domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings WHERE edit_token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanBooking(s.db.QueryRow(ctx, q, token))
}

func (s *Store) ListUpcomingBookingsByEmail(ctx context.Context, email string, now int64) ([]domain.Booking, error) {
	const q = `SELECT ` + bookingCols + ` FROM bookings
		WHERE lower(email) = lower($1) AND status = 'CONFIRMED' AND end_ts > $2
		ORDER BY start_ts`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q, email, now)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

func (s *Store) CountActiveBookings(ctx context.Context, email string, now int64) (int, error) {
	const q = `SELECT count(*) FROM bookings
		WHERE lower(email) = lower($1) AND status = 'CONFIRMED' AND end_ts > $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	err := s.db.QueryRow(ctx, q, email, now).Scan(&n)
	return n, err
}

func (s *Store) InsertBooking(ctx context.Context, b *domain.Booking) (int64, error) {
	const q = `INSERT INTO bookings
		(start_ts, end_ts, name, email, space, note, created_ts, created_ip, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, q,
		b.StartTs, b.EndTs, b.Name, b.Email, b.Space, b.Note,
		b.CreatedTs, b.CreatedIP, b.Status,
	).Scan(&id)
	return id, err
}

func (s *Store) UpdateBooking(ctx context.Context, b *domain.Booking) error {
	const q = `UPDATE bookings SET
		start_ts = $2, end_ts = $3, name = $4, email = $5,
		space = $6, note = $7, status = $8
		WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(ctx, q,
		b.ID, b.StartTs, b.EndTs, b.Name, b.Email, b.Space, b.Note, b.Status,
	)
	return err
}

func (s *Store) DeleteBooking(ctx context.Context, id int64) (bool, error) {
	const q = `DELETE FROM bookings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (s *Store) InsertPending(ctx context.Context, p *domain.PendingBooking) (int64, error) {
	const q = `INSERT INTO pending_bookings
		(start_ts, end_ts, name, email, space, note, code_hash, code_expires_ts, created_ts, created_ip)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, q,
		p.StartTs, p.EndTs, p.Name, p.Email, p.Space, p.Note,
		p.CodeHash, p.CodeExpiresTs, p.CreatedTs, p.CreatedIP,
	).Scan(&id)
	return id, err
}

func (s *Store) GetPending(ctx context.Context, id int64) (*domain.PendingBooking, error) {
	const q = `SELECT id, start_ts, end_ts, name, email, space, note,
		code_hash, code_expires_ts, attempts, created_ts, created_ip
		FROM pending_bookings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.PendingBooking
	err := s.db.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.StartTs, &p.EndTs, &p.Name, &p.Email, &p.Space, &p.Note,
		&p.CodeHash, &p.CodeExpiresTs, &p.Attempts, &p.CreatedTs, &p.CreatedIP,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) DeletePending(ctx context.Context, id int64) error {
	const q = `DELETE FROM pending_bookings WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(ctx, q, id)
	return err
}

func (s *Store) IncrementPendingAttempts(ctx context.Context, id int64) error {
	const q = `UPDATE pending_bookings SET attempts = attempts + 1 WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(ctx, q, id)
	return err
}

func (s *Store) DeleteExpiredPending(ctx context.Context, now int64) (int64, error) {
	const q = `DELETE FROM pending_bookings WHERE code_expires_ts < $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := s.db.Exec(ctx, q, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

func (s *Store) ListRules(ctx context.Context) ([]domain.RecurringRule, error) {
	const q = `SELECT ` + ruleCols + ` FROM recurring_rules ORDER BY id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *Store) InsertRule(ctx context.Context, r *domain.RecurringRule) (int64, error) {
	const q = `INSERT INTO recurring_rules
		(title, space, dow, start_min, end_min, start_date, end_date, created_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var id int64
	err := s.db.QueryRow(ctx, q,
		r.Title, r.Space, r.Weekday, r.StartMin, r.EndMin,
		r.StartDate, r.EndDate, r.CreatedTs,
	).Scan(&id)
	return id, err
}

func (s *Store) DeleteRule(ctx context.Context, id int64) (bool, error) {
	const q = `DELETE FROM recurring_rules WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (s *Store) InsertException(ctx context.Context, ruleID, dateTs, createdTs int64) error {
	const q = `INSERT INTO recurring_exceptions (rule_id, date_ts, created_ts)
		VALUES ($1,$2,$3)
		ON CONFLICT (rule_id, date_ts) DO NOTHING`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.db.Exec(ctx, q, ruleID, dateTs, createdTs)
	return err
}

func (s *Store) EnsureEditToken(ctx context.Context, bookingID int64) (string, error) {
	const q = `UPDATE bookings SET edit_token = COALESCE(edit_token, $2)
		WHERE id = $1
		RETURNING edit_token`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var token string
	err := s.db.QueryRow(ctx, q, bookingID, uuid.NewString()).Scan(&token)
	return token, err
}

func (s *Store) EnsureEmailToken(ctx context.Context, email string, createdTs int64) (string, error) {
	const q = `INSERT INTO email_tokens (token, email, created_ts)
		VALUES ($1, lower($2), $3)
		ON CONFLICT (email) DO UPDATE SET email = email_tokens.email
		RETURNING token`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var token string
	err := s.db.QueryRow(ctx, q, uuid.NewString(), email, createdTs).Scan(&token)
	return token, err
}

func (s *Store) EmailForToken(ctx context.Context, token string) (string, error) {
	const q = `SELECT email FROM email_tokens WHERE token = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var email string
	err := s.db.QueryRow(ctx, q, token).Scan(&email)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	return email, err
}

func (s *Store) RecentAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	const q = `SELECT id, ts, action, actor, ip, COALESCE(details, 'null'::jsonb)
		FROM audit_log ORDER BY id DESC LIMIT $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Ts, &e.Action, &e.Actor, &e.IP, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

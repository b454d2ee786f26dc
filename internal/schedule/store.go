package schedule

import (
	"context"
	"time"

	"github.com/cermofi/ReserveUMT/internal/domain"
)

// Queries is the storage surface the engine works against. The pool-backed
// store and its transaction view both implement it, so every check-and-act
// sequence can run against whichever scope the caller holds.
type Queries interface {
	// Conflict phase.
	HasOverlappingBooking(ctx context.Context, start, end int64, spaces []domain.Space, excludeID int64) (bool, error)
	RulesIntersecting(ctx context.Context, fromDate, toDate int64, spaces []domain.Space) ([]domain.RecurringRule, error)
	RuleExceptions(ctx context.Context, ruleID int64) (map[int64]struct{}, error)

	// Bookings.
	ListBookings(ctx context.Context, from, to int64) ([]domain.Booking, error)
	GetBooking(ctx context.Context, id int64) (*domain.Booking, error)
	GetBookingByEditToken(ctx context.Context, token string) (*domain.Booking, error)
	ListUpcomingBookingsByEmail(ctx context.Context, email string, now int64) ([]domain.Booking, error)
	CountActiveBookings(ctx context.Context, email string, now int64) (int, error)
	InsertBooking(ctx context.Context, b *domain.Booking) (int64, error)
	UpdateBooking(ctx context.Context, b *domain.Booking) error
	DeleteBooking(ctx context.Context, id int64) (bool, error)

	// Pending bookings.
	InsertPending(ctx context.Context, p *domain.PendingBooking) (int64, error)
	GetPending(ctx context.Context, id int64) (*domain.PendingBooking, error)
	DeletePending(ctx context.Context, id int64) error
	IncrementPendingAttempts(ctx context.Context, id int64) error
	DeleteExpiredPending(ctx context.Context, now int64) (int64, error)

	// Recurring rules.
	ListRules(ctx context.Context) ([]domain.RecurringRule, error)
	InsertRule(ctx context.Context, r *domain.RecurringRule) (int64, error)
	DeleteRule(ctx context.Context, id int64) (bool, error)
	InsertException(ctx context.Context, ruleID, dateTs, createdTs int64) error

	// Management tokens.
	EnsureEditToken(ctx context.Context, bookingID int64) (string, error)
	EnsureEmailToken(ctx context.Context, email string, createdTs int64) (string, error)
	EmailForToken(ctx context.Context, token string) (string, error)

	// Audit trail reads (writes go through AuditSink).
	RecentAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// Store adds the exclusive write transaction. WithTx must guarantee that of
// two racing transactions whose checks both pass, at most one commits; fn
// returning an error rolls everything back.
type Store interface {
	Queries
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

// SettingsStore exposes the mutable booking policy configuration. Load
// returns a consistent snapshot for one request.
type SettingsStore interface {
	Load(ctx context.Context) (domain.Settings, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Limiter is a fixed-window rate limiter over arbitrary string keys.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Reset(ctx context.Context) error
}

// Notifier delivers booking emails. SendVerificationCode failures abort the
// pending-creation flow; SendManageLink failures never undo a confirmed
// booking.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendManageLink(ctx context.Context, email string, b *domain.Booking, editToken, emailToken string) error
}

// AuditSink records successful mutations. Implementations swallow their own
// failures; auditing must never fail the parent operation.
type AuditSink interface {
	Record(ctx context.Context, actor, action, ip string, details map[string]any)
}

const (
	ActorAdmin  = "admin"
	ActorPublic = "public"
)

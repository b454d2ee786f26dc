package schedule

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
	"github.com/cermofi/ReserveUMT/internal/utils"
	"github.com/cermofi/ReserveUMT/pkg/events"
	"github.com/cermofi/ReserveUMT/pkg/logger"
)

// Rate limit windows for the public surface.
const (
	requestLimit  = 5
	requestWindow = time.Hour
	verifyLimit   = 10
	verifyWindow  = time.Hour
)

// Service orchestrates the reservation lifecycle: validation, policy checks,
// rate limiting, conflict detection, and the pending-verification state
// machine. All conflicting check-and-act sequences run inside Store.WithTx.
type Service struct {
	store    Store
	settings SettingsStore
	limiter  Limiter
	notifier Notifier
	audit    AuditSink
	bus      events.Publisher
	cal      *timeutil.Calendar
	now      func() time.Time
}

func NewService(store Store, settings SettingsStore, limiter Limiter, notifier Notifier, audit AuditSink, bus events.Publisher, cal *timeutil.Calendar) *Service {
	return &Service{
		store:    store,
		settings: settings,
		limiter:  limiter,
		notifier: notifier,
		audit:    audit,
		bus:      bus,
		cal:      cal,
		now:      time.Now,
	}
}

// BookingInput is the field shape shared by public requests and admin
// create/update calls.
type BookingInput struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Space string `json:"space"`
	Note  string `json:"note"`
}

// CreateResult carries either a pending verification handle or, when
// verification is disabled, the confirmed booking id.
type CreateResult struct {
	BookingID int64 `json:"booking_id,omitempty"`
	PendingID int64 `json:"pending_id,omitempty"`
	ExpiresTs int64 `json:"expires_ts,omitempty"`
}

type bookingFields struct {
	start int64
	end   int64
	name  string
	email string
	space domain.Space
	note  string
}

func (s *Service) validateBooking(in BookingInput, emailRequired bool) (bookingFields, error) {
	var f bookingFields

	name := utils.NormalizeString(in.Name)
	if name == "" || utf8.RuneCountInString(name) > domain.MaxNameLen {
		return f, domain.Validation("invalid name")
	}
	note := utils.NormalizeString(in.Note)
	if utf8.RuneCountInString(note) > domain.MaxNoteLen {
		return f, domain.Validation("note is too long")
	}
	email := utils.NormalizeEmail(in.Email)
	if emailRequired && email == "" {
		return f, domain.Validation("email is required")
	}
	if email != "" && !utils.IsValidEmail(email) {
		return f, domain.Validation("invalid email")
	}
	space, ok := domain.ParseSpace(utils.NormalizeString(in.Space))
	if !ok {
		return f, domain.Validation("invalid space")
	}

	start, err := s.cal.ParseDateTime(utils.NormalizeString(in.Date), utils.NormalizeString(in.Start))
	if err != nil {
		return f, domain.Validation("invalid date or time")
	}
	end, err := s.cal.ParseDateTime(utils.NormalizeString(in.Date), utils.NormalizeString(in.End))
	if err != nil {
		return f, domain.Validation("invalid date or time")
	}
	if end <= start {
		return f, domain.Validation("end must be after start")
	}

	f = bookingFields{start: start, end: end, name: name, email: email, space: space, note: note}
	return f, nil
}

// allow consults the rate limiter, denying when it is unreachable. A broken
// limiter must not open the public surface.
func (s *Service) allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	ok, err := s.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		logger.WarnContext(ctx, "rate limiter unavailable, denying request", "error", err)
		return false
	}
	return ok
}

func (s *Service) checkEmailCap(ctx context.Context, q Queries, settings domain.Settings, email string, now int64) error {
	if !emailCapApplies(settings, email) {
		return nil
	}
	count, err := q.CountActiveBookings(ctx, email, now)
	if err != nil {
		return domain.Storage(err)
	}
	return CheckEmailCap(settings, count)
}

func (s *Service) publish(ctx context.Context, subject string, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, subject, payload); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "subject", subject, "error", err)
	}
}

// insertConfirmed writes a confirmed booking and its management tokens inside
// the caller's transaction.
func (s *Service) insertConfirmed(ctx context.Context, q Queries, f bookingFields, ip string) (*domain.Booking, string, error) {
	b := &domain.Booking{
		StartTs:   f.start,
		EndTs:     f.end,
		Name:      f.name,
		Email:     f.email,
		Space:     f.space,
		Note:      f.note,
		CreatedTs: s.now().Unix(),
		CreatedIP: ip,
		Status:    domain.BookingConfirmed,
	}
	id, err := q.InsertBooking(ctx, b)
	if err != nil {
		return nil, "", err
	}
	b.ID = id
	token, err := q.EnsureEditToken(ctx, id)
	if err != nil {
		return nil, "", err
	}
	b.EditToken = token

	var emailToken string
	if b.Email != "" {
		emailToken, err = q.EnsureEmailToken(ctx, b.Email, s.now().Unix())
		if err != nil {
			return nil, "", err
		}
	}
	return b, emailToken, nil
}

// notifyConfirmed sends the management link. Best-effort: the booking is
// already committed and stays committed.
func (s *Service) notifyConfirmed(ctx context.Context, b *domain.Booking, emailToken string) {
	if b.Email == "" {
		return
	}
	if err := s.notifier.SendManageLink(ctx, b.Email, b, b.EditToken, emailToken); err != nil {
		logger.WarnContext(ctx, "failed to send manage link", "booking_id", b.ID, "error", err)
	}
}

// ListBookings returns confirmed bookings overlapping the half-open window
// [from, to), ordered by start time.
func (s *Service) ListBookings(ctx context.Context, from, to int64) ([]domain.Booking, error) {
	bookings, err := s.store.ListBookings(ctx, from, to)
	if err != nil {
		return nil, domain.Storage(err)
	}
	return bookings, nil
}

// ListOccurrences expands every recurring rule intersecting the window into
// its visible occurrences, ordered by start time.
func (s *Service) ListOccurrences(ctx context.Context, from, to int64) ([]domain.Occurrence, error) {
	rules, err := s.store.RulesIntersecting(ctx, s.cal.Midnight(from), s.cal.Midnight(to), nil)
	if err != nil {
		return nil, domain.Storage(err)
	}
	var out []domain.Occurrence
	for _, rule := range rules {
		exceptions, err := s.store.RuleExceptions(ctx, rule.ID)
		if err != nil {
			return nil, domain.Storage(err)
		}
		out = append(out, FilterOverlapping(ExpandOccurrences(s.cal, rule, exceptions, from, to), from, to)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTs < out[j].StartTs })
	return out, nil
}

// CreatePending handles a public reservation request. With email verification
// enabled it stores a pending booking and emails a 6-digit code; otherwise it
// confirms directly under an authoritative in-transaction conflict re-check.
func (s *Service) CreatePending(ctx context.Context, in BookingInput, ip string) (*CreateResult, error) {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, domain.Storage(err)
	}

	f, err := s.validateBooking(in, settings.RequireEmailVerification)
	if err != nil {
		return nil, err
	}

	now := s.now().Unix()
	if err := CheckAdvanceLimit(settings, now, f.start, f.end); err != nil {
		return nil, err
	}
	if err := CheckDurationLimit(settings, f.start, f.end); err != nil {
		return nil, err
	}
	if err := s.checkEmailCap(ctx, s.store, settings, f.email, now); err != nil {
		return nil, err
	}

	if !s.allow(ctx, "req_ip:"+ip, requestLimit, requestWindow) {
		return nil, domain.RateLimited()
	}
	if f.email != "" && !s.allow(ctx, "req_email:"+f.email, requestLimit, requestWindow) {
		return nil, domain.RateLimited()
	}

	// Advisory pre-check; the authoritative one runs inside the commit
	// transaction.
	busy, err := hasConflict(ctx, s.store, s.cal, f.start, f.end, f.space, 0)
	if err != nil {
		return nil, domain.Storage(err)
	}
	if busy {
		return nil, domain.Conflict("the slot is already taken")
	}

	if !settings.RequireEmailVerification {
		return s.confirmDirect(ctx, f, ip)
	}

	if _, err := s.store.DeleteExpiredPending(ctx, now); err != nil {
		logger.WarnContext(ctx, "failed to purge expired pending bookings", "error", err)
	}

	code, err := randomCode()
	if err != nil {
		return nil, domain.Storage(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.Storage(err)
	}

	pending := &domain.PendingBooking{
		StartTs:       f.start,
		EndTs:         f.end,
		Name:          f.name,
		Email:         f.email,
		Space:         f.space,
		Note:          f.note,
		CodeHash:      string(hash),
		CodeExpiresTs: now + domain.CodeTTLSeconds,
		CreatedTs:     now,
		CreatedIP:     ip,
	}
	pendingID, err := s.store.InsertPending(ctx, pending)
	if err != nil {
		return nil, domain.Storage(err)
	}

	// A pending row nobody can verify is useless: undo it when the code
	// cannot be delivered.
	if err := s.notifier.SendVerificationCode(ctx, f.email, code); err != nil {
		logger.ErrorContext(ctx, "failed to send verification code", "pending_id", pendingID, "error", err)
		if delErr := s.store.DeletePending(ctx, pendingID); delErr != nil {
			logger.ErrorContext(ctx, "failed to delete undeliverable pending booking", "pending_id", pendingID, "error", delErr)
		}
		return nil, domain.Storage(err)
	}

	s.audit.Record(ctx, ActorPublic, "pending_created", ip, map[string]any{
		"pending_id": pendingID,
		"start_ts":   f.start,
		"end_ts":     f.end,
		"space":      string(f.space),
	})

	return &CreateResult{PendingID: pendingID, ExpiresTs: pending.CodeExpiresTs}, nil
}

func (s *Service) confirmDirect(ctx context.Context, f bookingFields, ip string) (*CreateResult, error) {
	var booking *domain.Booking
	var emailToken string
	err := s.store.WithTx(ctx, func(q Queries) error {
		busy, err := hasConflict(ctx, q, s.cal, f.start, f.end, f.space, 0)
		if err != nil {
			return err
		}
		if busy {
			return domain.Conflict("the slot is already taken")
		}
		booking, emailToken, err = s.insertConfirmed(ctx, q, f, ip)
		return err
	})
	if err != nil {
		return nil, storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorPublic, "booking_confirmed", ip, map[string]any{
		"booking_id": booking.ID,
		"start_ts":   booking.StartTs,
		"end_ts":     booking.EndTs,
		"space":      string(booking.Space),
	})
	s.publish(ctx, events.ReservationConfirmed, events.ReservationConfirmedEvent{
		BookingID: booking.ID,
		StartTs:   booking.StartTs,
		EndTs:     booking.EndTs,
		Space:     string(booking.Space),
		Name:      booking.Name,
		Actor:     ActorPublic,
	})
	s.notifyConfirmed(ctx, booking, emailToken)

	return &CreateResult{BookingID: booking.ID}, nil
}

// Verify checks an emailed code against a pending booking and, on success,
// commits the confirmed booking in the same transaction as the authoritative
// conflict re-check. Attempt bookkeeping and expiry cleanup commit even
// though the call fails.
func (s *Service) Verify(ctx context.Context, pendingID int64, code, ip string) (int64, error) {
	if !s.allow(ctx, "verify_ip:"+ip, verifyLimit, verifyWindow) {
		return 0, domain.RateLimited()
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return 0, domain.Storage(err)
	}
	now := s.now().Unix()

	var booking *domain.Booking
	var emailToken string
	var outcome error
	err = s.store.WithTx(ctx, func(q Queries) error {
		pending, err := q.GetPending(ctx, pendingID)
		if err != nil {
			return err
		}
		if pending == nil {
			outcome = domain.NotFound("verification request not found")
			return nil
		}
		if pending.CodeExpiresTs < now {
			if err := q.DeletePending(ctx, pendingID); err != nil {
				return err
			}
			outcome = domain.Validation("the code has expired")
			return nil
		}
		if pending.Attempts >= domain.MaxCodeAttempts {
			outcome = domain.Validation("too many attempts")
			return nil
		}
		if bcrypt.CompareHashAndPassword([]byte(pending.CodeHash), []byte(code)) != nil {
			if err := q.IncrementPendingAttempts(ctx, pendingID); err != nil {
				return err
			}
			outcome = domain.Validation("invalid code")
			return nil
		}

		// Settings may have changed since the request was made.
		if err := CheckAdvanceLimit(settings, now, pending.StartTs, pending.EndTs); err != nil {
			outcome = err
			return nil
		}
		if err := CheckDurationLimit(settings, pending.StartTs, pending.EndTs); err != nil {
			outcome = err
			return nil
		}
		if err := s.checkEmailCap(ctx, q, settings, pending.Email, now); err != nil {
			outcome = err
			return nil
		}

		busy, err := hasConflict(ctx, q, s.cal, pending.StartTs, pending.EndTs, pending.Space, 0)
		if err != nil {
			return err
		}
		if busy {
			outcome = domain.Conflict("the slot is already taken")
			return nil
		}

		f := bookingFields{
			start: pending.StartTs,
			end:   pending.EndTs,
			name:  pending.Name,
			email: pending.Email,
			space: pending.Space,
			note:  pending.Note,
		}
		booking, emailToken, err = s.insertConfirmed(ctx, q, f, ip)
		if err != nil {
			return err
		}
		return q.DeletePending(ctx, pendingID)
	})
	if err != nil {
		return 0, storageUnlessDomain(err)
	}
	if outcome != nil {
		return 0, outcome
	}

	s.audit.Record(ctx, ActorPublic, "booking_confirmed", ip, map[string]any{
		"booking_id": booking.ID,
		"start_ts":   booking.StartTs,
		"end_ts":     booking.EndTs,
		"space":      string(booking.Space),
	})
	s.publish(ctx, events.ReservationConfirmed, events.ReservationConfirmedEvent{
		BookingID: booking.ID,
		StartTs:   booking.StartTs,
		EndTs:     booking.EndTs,
		Space:     string(booking.Space),
		Name:      booking.Name,
		Actor:     ActorPublic,
	})
	s.notifyConfirmed(ctx, booking, emailToken)

	return booking.ID, nil
}

// AdminCreate confirms a booking directly. Admin bookings bypass rate limits
// and policy caps but never the conflict check.
func (s *Service) AdminCreate(ctx context.Context, in BookingInput, ip string) (int64, error) {
	f, err := s.validateBooking(in, false)
	if err != nil {
		return 0, err
	}

	var booking *domain.Booking
	var emailToken string
	err = s.store.WithTx(ctx, func(q Queries) error {
		busy, err := hasConflict(ctx, q, s.cal, f.start, f.end, f.space, 0)
		if err != nil {
			return err
		}
		if busy {
			return domain.Conflict("the slot is already taken")
		}
		booking, emailToken, err = s.insertConfirmed(ctx, q, f, ip)
		return err
	})
	if err != nil {
		return 0, storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_booking_created", ip, map[string]any{"booking_id": booking.ID})
	s.publish(ctx, events.ReservationConfirmed, events.ReservationConfirmedEvent{
		BookingID: booking.ID,
		StartTs:   booking.StartTs,
		EndTs:     booking.EndTs,
		Space:     string(booking.Space),
		Name:      booking.Name,
		Actor:     ActorAdmin,
	})
	s.notifyConfirmed(ctx, booking, emailToken)

	return booking.ID, nil
}

// AdminUpdate rewrites a booking's interval, space and contact fields after
// re-checking conflicts with the booking itself excluded.
func (s *Service) AdminUpdate(ctx context.Context, id int64, in BookingInput, ip string) error {
	f, err := s.validateBooking(in, false)
	if err != nil {
		return err
	}

	var updated *domain.Booking
	err = s.store.WithTx(ctx, func(q Queries) error {
		existing, err := q.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NotFound("booking not found")
		}
		busy, err := hasConflict(ctx, q, s.cal, f.start, f.end, f.space, id)
		if err != nil {
			return err
		}
		if busy {
			return domain.Conflict("the slot is already taken")
		}
		existing.StartTs = f.start
		existing.EndTs = f.end
		existing.Name = f.name
		existing.Space = f.space
		existing.Note = f.note
		if f.email != "" {
			existing.Email = f.email
		}
		updated = existing
		return q.UpdateBooking(ctx, existing)
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_booking_updated", ip, map[string]any{"booking_id": id})
	s.publish(ctx, events.ReservationUpdated, events.ReservationUpdatedEvent{
		BookingID: id,
		StartTs:   updated.StartTs,
		EndTs:     updated.EndTs,
		Space:     string(updated.Space),
		Actor:     ActorAdmin,
	})
	return nil
}

// AdminDelete removes a booking.
func (s *Service) AdminDelete(ctx context.Context, id int64, ip string) error {
	err := s.store.WithTx(ctx, func(q Queries) error {
		deleted, err := q.DeleteBooking(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.NotFound("booking not found")
		}
		return nil
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorAdmin, "admin_booking_deleted", ip, map[string]any{"booking_id": id})
	s.publish(ctx, events.ReservationDeleted, events.ReservationDeletedEvent{BookingID: id, Actor: ActorAdmin})
	return nil
}

// PublicUpdate edits a booking through its management token. Public edits
// stay subject to the advance and duration policies.
func (s *Service) PublicUpdate(ctx context.Context, editToken string, in BookingInput, ip string) error {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		return domain.Storage(err)
	}
	f, err := s.validateBooking(in, false)
	if err != nil {
		return err
	}
	now := s.now().Unix()
	if err := CheckAdvanceLimit(settings, now, f.start, f.end); err != nil {
		return err
	}
	if err := CheckDurationLimit(settings, f.start, f.end); err != nil {
		return err
	}

	var bookingID int64
	err = s.store.WithTx(ctx, func(q Queries) error {
		existing, err := q.GetBookingByEditToken(ctx, editToken)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NotFound("booking not found")
		}
		busy, err := hasConflict(ctx, q, s.cal, f.start, f.end, f.space, existing.ID)
		if err != nil {
			return err
		}
		if busy {
			return domain.Conflict("the slot is already taken")
		}
		existing.StartTs = f.start
		existing.EndTs = f.end
		existing.Name = f.name
		existing.Space = f.space
		bookingID = existing.ID
		return q.UpdateBooking(ctx, existing)
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorPublic, "public_booking_updated", ip, map[string]any{"booking_id": bookingID})
	s.publish(ctx, events.ReservationUpdated, events.ReservationUpdatedEvent{
		BookingID: bookingID,
		StartTs:   f.start,
		EndTs:     f.end,
		Space:     string(f.space),
		Actor:     ActorPublic,
	})
	return nil
}

// PublicDelete removes a booking through its management token.
func (s *Service) PublicDelete(ctx context.Context, editToken, ip string) error {
	var bookingID int64
	err := s.store.WithTx(ctx, func(q Queries) error {
		existing, err := q.GetBookingByEditToken(ctx, editToken)
		if err != nil {
			return err
		}
		if existing == nil {
			return domain.NotFound("booking not found")
		}
		bookingID = existing.ID
		deleted, err := q.DeleteBooking(ctx, existing.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.NotFound("booking not found")
		}
		return nil
	})
	if err != nil {
		return storageUnlessDomain(err)
	}

	s.audit.Record(ctx, ActorPublic, "public_booking_deleted", ip, map[string]any{"booking_id": bookingID})
	s.publish(ctx, events.ReservationDeleted, events.ReservationDeletedEvent{BookingID: bookingID, Actor: ActorPublic})
	return nil
}

// BookingByEditToken resolves a management token for the manage surface.
func (s *Service) BookingByEditToken(ctx context.Context, token string) (*domain.Booking, error) {
	b, err := s.store.GetBookingByEditToken(ctx, token)
	if err != nil {
		return nil, domain.Storage(err)
	}
	if b == nil {
		return nil, domain.NotFound("booking not found")
	}
	return b, nil
}

// BookingsForEmailToken lists an email's upcoming bookings for its manage
// link.
func (s *Service) BookingsForEmailToken(ctx context.Context, token string) (string, []domain.Booking, error) {
	email, err := s.store.EmailForToken(ctx, token)
	if err != nil {
		return "", nil, domain.Storage(err)
	}
	if email == "" {
		return "", nil, domain.NotFound("invalid link")
	}
	bookings, err := s.store.ListUpcomingBookingsByEmail(ctx, email, s.now().Unix())
	if err != nil {
		return "", nil, domain.Storage(err)
	}
	return email, bookings, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// storageUnlessDomain wraps raw storage errors while letting classified
// engine errors pass through unchanged.
func storageUnlessDomain(err error) error {
	if _, ok := err.(*domain.Error); ok {
		return err
	}
	return domain.Storage(err)
}

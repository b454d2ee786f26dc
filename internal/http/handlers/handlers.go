package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/http/response"
	"github.com/cermofi/ReserveUMT/internal/platform/auth"
	"github.com/cermofi/ReserveUMT/internal/schedule"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
)

// Scheduler is the engine surface the handlers call.
type Scheduler interface {
	ListBookings(ctx context.Context, from, to int64) ([]domain.Booking, error)
	ListOccurrences(ctx context.Context, from, to int64) ([]domain.Occurrence, error)
	CreatePending(ctx context.Context, in schedule.BookingInput, ip string) (*schedule.CreateResult, error)
	Verify(ctx context.Context, pendingID int64, code, ip string) (int64, error)

	BookingByEditToken(ctx context.Context, token string) (*domain.Booking, error)
	BookingsForEmailToken(ctx context.Context, token string) (string, []domain.Booking, error)
	PublicUpdate(ctx context.Context, editToken string, in schedule.BookingInput, ip string) error
	PublicDelete(ctx context.Context, editToken, ip string) error

	AdminCreate(ctx context.Context, in schedule.BookingInput, ip string) (int64, error)
	AdminUpdate(ctx context.Context, id int64, in schedule.BookingInput, ip string) error
	AdminDelete(ctx context.Context, id int64, ip string) error
	AdminOverview(ctx context.Context, from, to int64) (*schedule.Overview, error)

	ListRules(ctx context.Context) ([]domain.RecurringRule, error)
	CreateRule(ctx context.Context, in schedule.RuleInput, ip string) (int64, error)
	DeleteRule(ctx context.Context, id int64, ip string) error
	DeleteOccurrence(ctx context.Context, ruleID, dateTs int64, ip string) error

	GetSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value, ip string) error
	ClearRateLimits(ctx context.Context, ip string) error
}

// maxListDays caps the listing window so one request cannot expand a year of
// recurring rules.
const maxListDays = 31

type Handlers struct {
	svc          Scheduler
	sessions     *auth.Sessions
	limiter      schedule.Limiter
	cal          *timeutil.Calendar
	passwordHash string
}

func New(svc Scheduler, sessions *auth.Sessions, limiter schedule.Limiter, cal *timeutil.Calendar, passwordHash string) *Handlers {
	return &Handlers{
		svc:          svc,
		sessions:     sessions,
		limiter:      limiter,
		cal:          cal,
		passwordHash: passwordHash,
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.Validation("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation("invalid id")
	}
	return id, nil
}

// listWindow resolves the from/to query dates into a half-open epoch window,
// defaulting to the next 31 days and rejecting ranges wider than that.
func (h *Handlers) listWindow(r *http.Request) (int64, int64, error) {
	now := time.Now().Unix()
	from := h.cal.Midnight(now)
	if q := r.URL.Query().Get("from"); q != "" {
		d, err := h.cal.ParseDate(q)
		if err != nil {
			return 0, 0, domain.Validation("invalid from date")
		}
		from = d
	}

	to := from + maxListDays*86400
	if q := r.URL.Query().Get("to"); q != "" {
		d, err := h.cal.ParseDate(q)
		if err != nil {
			return 0, 0, domain.Validation("invalid to date")
		}
		to = h.cal.NextDay(d) // inclusive end date
	}

	if to <= from {
		return 0, 0, domain.Validation("empty date range")
	}
	if to-from > maxListDays*86400 {
		return 0, 0, domain.Validation("date range too wide")
	}
	return from, to, nil
}

func writeOK(w http.ResponseWriter, v any) {
	response.WriteJSON(w, http.StatusOK, v)
}

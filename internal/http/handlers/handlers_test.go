package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"

	"github.com/cermofi/ReserveUMT/internal/domain"
	"github.com/cermofi/ReserveUMT/internal/http/handlers"
	mw "github.com/cermofi/ReserveUMT/internal/http/middleware"
	"github.com/cermofi/ReserveUMT/internal/platform/auth"
	"github.com/cermofi/ReserveUMT/internal/schedule"
	"github.com/cermofi/ReserveUMT/internal/timeutil"
)

// ---------- Fakes ----------

type fakeScheduler struct {
	bookings    []domain.Booking
	occurrences []domain.Occurrence
	rules       []domain.RecurringRule
	settings    map[string]string
	overview    *schedule.Overview

	createResult *schedule.CreateResult
	verifyID     int64
	booking      *domain.Booking

	err error // injected failure for every call
}

func (f *fakeScheduler) ListBookings(context.Context, int64, int64) ([]domain.Booking, error) {
	return f.bookings, f.err
}
func (f *fakeScheduler) ListOccurrences(context.Context, int64, int64) ([]domain.Occurrence, error) {
	return f.occurrences, f.err
}
func (f *fakeScheduler) CreatePending(context.Context, schedule.BookingInput, string) (*schedule.CreateResult, error) {
	return f.createResult, f.err
}
func (f *fakeScheduler) Verify(context.Context, int64, string, string) (int64, error) {
	return f.verifyID, f.err
}
func (f *fakeScheduler) BookingByEditToken(context.Context, string) (*domain.Booking, error) {
	return f.booking, f.err
}
func (f *fakeScheduler) BookingsForEmailToken(context.Context, string) (string, []domain.Booking, error) {
	return "alice@example.com", f.bookings, f.err
}
func (f *fakeScheduler) PublicUpdate(context.Context, string, schedule.BookingInput, string) error {
	return f.err
}
func (f *fakeScheduler) PublicDelete(context.Context, string, string) error { return f.err }
func (f *fakeScheduler) AdminCreate(context.Context, schedule.BookingInput, string) (int64, error) {
	return 7, f.err
}
func (f *fakeScheduler) AdminUpdate(context.Context, int64, schedule.BookingInput, string) error {
	return f.err
}
func (f *fakeScheduler) AdminDelete(context.Context, int64, string) error { return f.err }
func (f *fakeScheduler) AdminOverview(context.Context, int64, int64) (*schedule.Overview, error) {
	return f.overview, f.err
}
func (f *fakeScheduler) ListRules(context.Context) ([]domain.RecurringRule, error) {
	return f.rules, f.err
}
func (f *fakeScheduler) CreateRule(context.Context, schedule.RuleInput, string) (int64, error) {
	return 3, f.err
}
func (f *fakeScheduler) DeleteRule(context.Context, int64, string) error { return f.err }
func (f *fakeScheduler) DeleteOccurrence(context.Context, int64, int64, string) error {
	return f.err
}
func (f *fakeScheduler) GetSettings(context.Context) (map[string]string, error) {
	return f.settings, f.err
}
func (f *fakeScheduler) SetSetting(context.Context, string, string, string) error { return f.err }
func (f *fakeScheduler) ClearRateLimits(context.Context, string) error            { return f.err }

type allowAllLimiter struct {
	counts map[string]int
}

func (l *allowAllLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.counts == nil {
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

func (l *allowAllLimiter) Reset(context.Context) error {
	l.counts = nil
	return nil
}

// ---------- Harness ----------

const testPassword = "hunter2-but-long"

func newRouter(t *testing.T, svc handlers.Scheduler) (*chi.Mux, *auth.Sessions) {
	t.Helper()
	cal, err := timeutil.NewCalendar("Europe/Prague")
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	hash, err := argon2id.CreateHash(testPassword, argon2id.DefaultParams)
	if err != nil {
		t.Fatalf("CreateHash: %v", err)
	}
	sessions := auth.NewSessions("test-secret", time.Hour)
	h := handlers.New(svc, sessions, &allowAllLimiter{}, cal, hash)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/bookings", h.ListCalendar)
		r.Get("/settings", h.GetSettings)
		r.Post("/bookings", h.RequestBooking)
		r.Post("/bookings/verify", h.VerifyCode)
		r.Get("/manage/booking", h.GetManagedBooking)
		r.Delete("/manage/booking", h.DeleteManagedBooking)
		r.Post("/admin/login", h.Login)
		r.Group(func(r chi.Router) {
			r.Use(mw.AdminAuth(sessions))
			r.Get("/admin/overview", h.Overview)
			r.Delete("/admin/bookings/{id}", h.DeleteBooking)
		})
	})
	return r, sessions
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// ---------- Public surface ----------

func TestListCalendarStripsPrivateFields(t *testing.T) {
	svc := &fakeScheduler{
		bookings: []domain.Booking{{
			ID:        1,
			StartTs:   1000,
			EndTs:     2000,
			Name:      "Alice",
			Email:     "alice@example.com",
			Note:      "secret note",
			CreatedIP: "1.2.3.4",
			Space:     domain.SpaceHalfA,
			Status:    domain.BookingConfirmed,
		}},
	}
	r, _ := newRouter(t, svc)

	w := doJSON(t, r, http.MethodGet, "/api/bookings", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	for _, leaked := range []string{"alice@example.com", "secret note", "1.2.3.4"} {
		if strings.Contains(body, leaked) {
			t.Errorf("public listing leaks %q", leaked)
		}
	}
	if !strings.Contains(body, "Alice") {
		t.Error("public listing missing booking name")
	}
}

func TestListCalendarRejectsWideRange(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{})

	w := doJSON(t, r, http.MethodGet, "/api/bookings?from=2024-06-01&to=2024-12-31", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/bookings?from=2024-06-10&to=2024-06-01", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("inverted range status = %d, want 400", w.Code)
	}
}

func TestListCalendarWindowBoundary(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{})

	// to is inclusive, so 2024-06-01..2024-07-01 is exactly 31 days.
	w := doJSON(t, r, http.MethodGet, "/api/bookings?from=2024-06-01&to=2024-07-01", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("31-day range status = %d, want 200", w.Code)
	}

	// One more day tips the window over the cap.
	w = doJSON(t, r, http.MethodGet, "/api/bookings?from=2024-06-01&to=2024-07-02", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("32-day range status = %d, want 400", w.Code)
	}
}

func TestRequestBookingReturnsPendingHandle(t *testing.T) {
	svc := &fakeScheduler{createResult: &schedule.CreateResult{PendingID: 42, ExpiresTs: 9999}}
	r, _ := newRouter(t, svc)

	w := doJSON(t, r, http.MethodPost, "/api/bookings", schedule.BookingInput{
		Date: "2024-06-10", Start: "10:00", End: "11:00",
		Name: "Alice", Email: "a@b.cz", Space: "WHOLE",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["pending_id"] != float64(42) {
		t.Errorf("pending_id = %v", body["pending_id"])
	}
}

func TestRequestBookingDirectConfirm(t *testing.T) {
	svc := &fakeScheduler{createResult: &schedule.CreateResult{BookingID: 7}}
	r, _ := newRouter(t, svc)

	w := doJSON(t, r, http.MethodPost, "/api/bookings", schedule.BookingInput{
		Date: "2024-06-10", Start: "10:00", End: "11:00", Name: "Alice", Space: "WHOLE",
	})
	body := decodeBody(t, w)
	if body["booking_id"] != float64(7) {
		t.Errorf("booking_id = %v", body["booking_id"])
	}
	if _, ok := body["pending_id"]; ok {
		t.Error("direct confirmation should not return a pending_id")
	}
}

func TestErrorKindMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validation("bad"), http.StatusBadRequest, "INVALID_INPUT"},
		{domain.Conflict("taken"), http.StatusBadRequest, "CONFLICT"},
		{domain.Policy("limit"), http.StatusBadRequest, "POLICY_LIMIT"},
		{domain.RateLimited(), http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"},
		{domain.NotFound("gone"), http.StatusNotFound, "NOT_FOUND"},
		{domain.Storage(nil), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		r, _ := newRouter(t, &fakeScheduler{err: tc.err})
		w := doJSON(t, r, http.MethodPost, "/api/bookings", schedule.BookingInput{Date: "2024-06-10"})
		if w.Code != tc.status {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.status)
		}
		body := decodeBody(t, w)
		if body["code"] != tc.code {
			t.Errorf("%v: code = %v, want %s", tc.err, body["code"], tc.code)
		}
	}
}

func TestVerifyCodeRequiresFields(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{verifyID: 5})

	w := doJSON(t, r, http.MethodPost, "/api/bookings/verify", map[string]any{"pending_id": 0, "code": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/bookings/verify", map[string]any{"pending_id": 1, "code": "123456"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["booking_id"] != float64(5) {
		t.Errorf("booking_id = %v", body["booking_id"])
	}
}

// ---------- Manage surface ----------

func TestManageRequiresToken(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{})
	w := doJSON(t, r, http.MethodGet, "/api/manage/booking", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestManageUnknownTokenIs404(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{err: domain.NotFound("booking not found")})
	w := doJSON(t, r, http.MethodGet, "/api/manage/booking?token=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

// ---------- Admin surface ----------

func TestAdminAuthRequired(t *testing.T) {
	svc := &fakeScheduler{overview: &schedule.Overview{}}
	r, sessions := newRouter(t, svc)

	w := doJSON(t, r, http.MethodGet, "/api/admin/overview", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", rec.Code)
	}

	token, err := sessions.NewToken()
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/admin/overview", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{})

	w := doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{"password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{"password": testPassword})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["token"] == nil || body["token"] == "" {
		t.Error("login returned no token")
	}
	cookies := w.Result().Cookies()
	var found bool
	for _, c := range cookies {
		if c.Name == "admin_session" && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Error("login did not set the session cookie")
	}
}

func TestLoginRateLimited(t *testing.T) {
	r, _ := newRouter(t, &fakeScheduler{})

	for i := 0; i < 5; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{"password": "wrong"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d", i, w.Code)
		}
	}
	w := doJSON(t, r, http.MethodPost, "/api/admin/login", map[string]string{"password": testPassword})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
}

func TestAdminDeleteInvalidID(t *testing.T) {
	r, sessions := newRouter(t, &fakeScheduler{})
	token, _ := sessions.NewToken()

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/bookings/zero", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
